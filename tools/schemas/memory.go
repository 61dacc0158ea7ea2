package schemas

// MemorySchemas returns schemas for the memory tools.
//
// user_id and thread_id are deliberately absent from store_memory and
// retrieve_memories: the ambient session scope supplies them, so the model
// cannot read or write another user's memories. delete_memory is the one
// exception and takes an explicit user_id for its ownership check.
func MemorySchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"store_memory": {
			Description: "Store a long-term memory for the current user. Near-duplicate memories (same user and type) are skipped.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The memory text to store.",
					},
					"memory_type": map[string]any{
						"type":        "string",
						"description": "Kind of memory: 'episodic' (events, conversations) or 'semantic' (facts, preferences).",
						"enum":        []string{"episodic", "semantic"},
					},
					"metadata": map[string]any{
						"type":        "object",
						"description": "Optional string key/value pairs attached to the memory.",
						"additionalProperties": map[string]any{
							"type": "string",
						},
					},
				},
				"required": []string{"content", "memory_type"},
			},
		},
		"retrieve_memories": {
			Description: "Retrieve the current user's memories most similar to a query. Only sufficiently relevant memories are returned, ordered by relevance.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Text to search for.",
					},
					"memory_type": map[string]any{
						"description": "Kind of memory to search: 'episodic', 'semantic', or a list of kinds.",
						"oneOf": []map[string]any{
							{
								"type": "string",
								"enum": []string{"episodic", "semantic"},
							},
							{
								"type": "array",
								"items": map[string]any{
									"type": "string",
									"enum": []string{"episodic", "semantic"},
								},
								"minItems": 1,
							},
						},
					},
					"limit": map[string]any{
						"type":        "number",
						"description": "Maximum number of memories to return (default: 5).",
					},
				},
				"required": []string{"query", "memory_type"},
			},
		},
		"record_exchange": {
			Description: "Extract long-term memories from a user/assistant exchange and store the ones worth keeping. Near-duplicates are skipped.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"user_message": map[string]any{
						"type":        "string",
						"description": "What the user said.",
					},
					"assistant_message": map[string]any{
						"type":        "string",
						"description": "What the assistant replied.",
					},
				},
				"required": []string{"user_message", "assistant_message"},
			},
		},
		"delete_memory": {
			Description: "Delete a memory by its ID. The memory is only deleted if it belongs to the given user.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"memory_id": map[string]any{
						"type":        "string",
						"description": "ID of the memory to delete, as returned by store_memory or retrieve_memories.",
					},
					"user_id": map[string]any{
						"type":        "string",
						"description": "User the memory must belong to.",
					},
				},
				"required": []string{"memory_id", "user_id"},
			},
		},
	}
}
