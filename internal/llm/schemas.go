package llm

// Response schemas for each structured call. Names double as the
// json_schema format name sent to the provider.

// CharacterUtterance is one player-character turn in a conversation.
type CharacterUtterance struct {
	Utterance    string `json:"utterance"`
	GoalAchieved bool   `json:"goalAchieved"`
}

// CharacterUtteranceSchema constrains CharacterUtterance responses.
var CharacterUtteranceSchema = Schema{
	Name: "character_utterance",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"utterance", "goalAchieved"},
		"properties": map[string]any{
			"utterance":    map[string]any{"type": "string"},
			"goalAchieved": map[string]any{"type": "boolean"},
		},
	},
}

// NPCUtterance is one NPC turn in a conversation.
type NPCUtterance struct {
	Utterance string `json:"utterance"`
}

// NPCUtteranceSchema constrains NPCUtterance responses.
var NPCUtteranceSchema = Schema{
	Name: "npc_utterance",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"utterance"},
		"properties": map[string]any{
			"utterance": map[string]any{"type": "string"},
		},
	},
}

// BehaviorIntent is a raw behavior decision before guardrails.
type BehaviorIntent struct {
	Kind            string `json:"kind"`
	ActionID        string `json:"actionId,omitempty"`
	FacilityID      string `json:"facilityId,omitempty"`
	MapID           string `json:"mapId,omitempty"`
	NodeID          string `json:"nodeId,omitempty"`
	NpcID           string `json:"npcId,omitempty"`
	Goal            string `json:"goal,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// BehaviorIntentSchema constrains BehaviorIntent responses.
var BehaviorIntentSchema = Schema{
	Name: "behavior_intent",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"kind", "reason"},
		"properties": map[string]any{
			"kind": map[string]any{
				"type": "string",
				"enum": []any{"idle", "moveToNode", "moveToMap", "startAction", "startConversation"},
			},
			"actionId":        map[string]any{"type": "string"},
			"facilityId":      map[string]any{"type": "string"},
			"mapId":           map[string]any{"type": "string"},
			"nodeId":          map[string]any{"type": "string"},
			"npcId":           map[string]any{"type": "string"},
			"goal":            map[string]any{"type": "string"},
			"durationMinutes": map[string]any{"type": "integer"},
			"reason":          map[string]any{"type": "string"},
		},
	},
}

// ExtractedMemory is one memory candidate from conversation extraction.
type ExtractedMemory struct {
	Content    string `json:"content"`
	Importance string `json:"importance"`
}

// ConversationExtraction is the post-conversation digest.
type ConversationExtraction struct {
	Summary        string            `json:"summary"`
	AffinityChange int               `json:"affinityChange"`
	Facts          []string          `json:"facts"`
	Mood           string            `json:"mood"`
	Topics         []string          `json:"topics"`
	Memories       []ExtractedMemory `json:"memories"`
}

// ConversationExtractionSchema constrains ConversationExtraction responses.
var ConversationExtractionSchema = Schema{
	Name: "conversation_extraction",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"summary", "affinityChange", "facts", "mood", "topics", "memories"},
		"properties": map[string]any{
			"summary":        map[string]any{"type": "string"},
			"affinityChange": map[string]any{"type": "integer", "minimum": -20, "maximum": 20},
			"facts":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"mood": map[string]any{
				"type": "string",
				"enum": []any{"happy", "neutral", "sad", "angry", "excited"},
			},
			"topics": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"memories": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"content", "importance"},
					"properties": map[string]any{
						"content": map[string]any{"type": "string"},
						"importance": map[string]any{
							"type": "string",
							"enum": []any{"low", "medium", "high"},
						},
					},
				},
			},
		},
	},
}

// ScheduleChange is one schedule mutation proposed by the model.
type ScheduleChange struct {
	Op       string `json:"op"`
	Time     string `json:"time"`
	Activity string `json:"activity,omitempty"`
	MapID    string `json:"mapId,omitempty"`
	NodeID   string `json:"nodeId,omitempty"`
}

// ScheduleUpdate is a batch of schedule mutations.
type ScheduleUpdate struct {
	Changes []ScheduleChange `json:"changes"`
}

// ScheduleUpdateSchema constrains ScheduleUpdate responses.
var ScheduleUpdateSchema = Schema{
	Name: "schedule_update",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"changes"},
		"properties": map[string]any{
			"changes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"op", "time"},
					"properties": map[string]any{
						"op":       map[string]any{"type": "string", "enum": []any{"add", "remove", "modify"}},
						"time":     map[string]any{"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
						"activity": map[string]any{"type": "string"},
						"mapId":    map[string]any{"type": "string"},
						"nodeId":   map[string]any{"type": "string"},
					},
				},
			},
		},
	},
}
