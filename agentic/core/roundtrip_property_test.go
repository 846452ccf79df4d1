package core_test

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/goadesign/agentic-core/agentic/core"
)

// TestModelRoundJSONRoundTripProperty verifies base spec §8's "round-trip /
// idempotence" property for ModelRound: encoding to JSON and decoding back
// reproduces the original value exactly, for any generated round.
func TestModelRoundJSONRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ModelRound survives a JSON marshal/unmarshal round-trip", prop.ForAll(
		func(round core.ModelRound) bool {
			data, err := json.Marshal(round)
			if err != nil {
				return false
			}
			var decoded core.ModelRound
			if err := json.Unmarshal(data, &decoded); err != nil {
				return false
			}
			return reflect.DeepEqual(round, decoded)
		},
		genModelRound(),
	))

	properties.TestingRun(t)
}

// TestSessionJSONRoundTripProperty verifies the same property for Session.
func TestSessionJSONRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Session survives a JSON marshal/unmarshal round-trip", prop.ForAll(
		func(sess core.Session) bool {
			data, err := json.Marshal(sess)
			if err != nil {
				return false
			}
			var decoded core.Session
			if err := json.Unmarshal(data, &decoded); err != nil {
				return false
			}
			return reflect.DeepEqual(sess, decoded)
		},
		genSession(),
	))

	properties.TestingRun(t)
}

// TestDialogTurnJSONRoundTripProperty verifies the same property for
// DialogTurn.
func TestDialogTurnJSONRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("DialogTurn survives a JSON marshal/unmarshal round-trip", prop.ForAll(
		func(turn core.DialogTurn) bool {
			data, err := json.Marshal(turn)
			if err != nil {
				return false
			}
			var decoded core.DialogTurn
			if err := json.Unmarshal(data, &decoded); err != nil {
				return false
			}
			return reflect.DeepEqual(turn, decoded)
		},
		genDialogTurn(),
	))

	properties.TestingRun(t)
}

// Generators

func genAlphaString(maxLen int) gopter.Gen {
	return gen.IntRange(0, maxLen).FlatMap(func(length any) gopter.Gen {
		return gen.SliceOfN(length.(int), gen.AlphaChar()).Map(func(chars []rune) string {
			return string(chars)
		})
	}, reflect.TypeOf(""))
}

func genUTCTime() gopter.Gen {
	return gen.Int64Range(0, 2_000_000_000).Map(func(secs int64) time.Time {
		return time.Unix(secs, 0).UTC()
	})
}

func genStringSlice(maxLen int) gopter.Gen {
	return gen.IntRange(0, maxLen).FlatMap(func(n any) gopter.Gen {
		return gen.SliceOfN(n.(int), genAlphaString(10))
	}, reflect.TypeOf([]string{}))
}

func genSessionConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 64),
		gen.Bool(),
		gen.Float64Range(0, 1),
		gen.Bool(),
	).Map(func(vals []any) core.SessionConfig {
		return core.SessionConfig{
			MaxContextTokens:     vals[0].(int),
			MaxTurns:             vals[1].(int),
			EnableCompression:    vals[2].(bool),
			CompressionThreshold: vals[3].(float64),
			EnableTools:          vals[4].(bool),
		}
	})
}

func genCompressionState() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 20),
		genUTCTime(),
	).Map(func(vals []any) core.CompressionState {
		return core.CompressionState{
			Count:  vals[0].(int),
			LastAt: vals[1].(time.Time),
		}
	})
}

func genSession() gopter.Gen {
	return gopter.CombineGens(
		genAlphaString(20),
		genAlphaString(20),
		genSessionConfig(),
		genStringSlice(5),
		genCompressionState(),
		genUTCTime(),
		genUTCTime(),
	).Map(func(vals []any) core.Session {
		return core.Session{
			ID:            vals[0].(string),
			AgentType:     vals[1].(string),
			Config:        vals[2].(core.SessionConfig),
			DialogTurnIDs: vals[3].([]string),
			Compression:   vals[4].(core.CompressionState),
			CreatedAt:     vals[5].(time.Time),
			UpdatedAt:     vals[6].(time.Time),
		}
	})
}

func genDialogTurnState() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 3),
		gen.IntRange(0, 32),
		genStringSlice(3),
		genAlphaString(40),
		gen.IntRange(0, 32),
		gen.Bool(),
		genAlphaString(40),
	).Map(func(vals []any) core.DialogTurnState {
		return core.DialogTurnState{
			Kind:          core.DialogTurnStateKind(vals[0].(int)),
			RoundIndex:    vals[1].(int),
			PendingTools:  vals[2].([]string),
			FinalResponse: vals[3].(string),
			TotalRounds:   vals[4].(int),
			Truncated:     vals[5].(bool),
			Error:         vals[6].(string),
		}
	})
}

func genDialogTurn() gopter.Gen {
	return gopter.CombineGens(
		genAlphaString(20),
		genAlphaString(20),
		gen.IntRange(0, 100),
		genAlphaString(100),
		genStringSlice(5),
		genDialogTurnState(),
		genUTCTime(),
		genUTCTime(),
	).Map(func(vals []any) core.DialogTurn {
		return core.DialogTurn{
			ID:            vals[0].(string),
			SessionID:     vals[1].(string),
			TurnIndex:     vals[2].(int),
			UserInput:     vals[3].(string),
			ModelRoundIDs: vals[4].([]string),
			State:         vals[5].(core.DialogTurnState),
			StartedAt:     vals[6].(time.Time),
			CompletedAt:   vals[7].(time.Time),
		}
	})
}

func genMessage() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf(core.RoleSystem, core.RoleUser, core.RoleAssistant, core.RoleTool),
		genAlphaString(50),
		genAlphaString(50),
		genAlphaString(20),
		genAlphaString(10),
		genAlphaString(10),
	).Map(func(vals []any) core.Message {
		return core.Message{
			Role:             vals[0].(core.ConversationRole),
			Content:          vals[1].(string),
			ReasoningContent: vals[2].(string),
			ThinkingSig:      vals[3].(string),
			ToolCallID:       vals[4].(string),
			Name:             vals[5].(string),
		}
	})
}

func genToolCall() gopter.Gen {
	return gopter.CombineGens(
		genAlphaString(10),
		genAlphaString(10),
		genAlphaString(10),
		genAlphaString(20),
	).Map(func(vals []any) core.ToolCall {
		return core.ToolCall{
			ID:   vals[0].(string),
			Name: vals[1].(string),
			// string-only values: JSON round-trips map[string]any losslessly
			// only when every value is already a JSON string (numeric values
			// decode back as float64, not their original Go type).
			Arguments: map[string]any{vals[2].(string): vals[3].(string)},
		}
	})
}

func genToolResult() gopter.Gen {
	return gopter.CombineGens(
		genAlphaString(10),
		genAlphaString(10),
		genAlphaString(30),
		gen.Int64Range(0, 100_000),
		gen.Bool(),
		genAlphaString(40),
		gen.Bool(),
	).Map(func(vals []any) core.ToolResult {
		return core.ToolResult{
			ToolCallID:      vals[0].(string),
			ToolName:        vals[1].(string),
			Result:          vals[2].(string),
			ExecutionTimeMs: vals[3].(int64),
			IsError:         vals[4].(bool),
			ErrorText:       vals[5].(string),
			Retryable:       vals[6].(bool),
		}
	})
}

func genTokenUsage() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 1_000_000),
	).Map(func(vals []any) core.TokenUsage {
		return core.TokenUsage{
			PromptTokens:     vals[0].(int),
			CompletionTokens: vals[1].(int),
			TotalTokens:      vals[2].(int),
			CachedTokens:     vals[3].(int),
		}
	})
}

func genModelRound() gopter.Gen {
	return gopter.CombineGens(
		genAlphaString(20),
		genAlphaString(20),
		gen.IntRange(0, 32),
		gen.SliceOfN(2, genMessage()),
		genAlphaString(200),
		gen.SliceOfN(2, genToolCall()),
		gen.SliceOfN(2, genToolResult()),
		gen.IntRange(0, 3),
		genTokenUsage(),
		gen.Int64Range(0, 600_000),
	).Map(func(vals []any) core.ModelRound {
		return core.ModelRound{
			ID:            vals[0].(string),
			DialogTurnID:  vals[1].(string),
			RoundIndex:    vals[2].(int),
			InputMessages: vals[3].([]core.Message),
			AIText:        vals[4].(string),
			ToolCalls:     vals[5].([]core.ToolCall),
			ToolResults:   vals[6].([]core.ToolResult),
			State:         core.ModelRoundStateKind(vals[7].(int)),
			Usage:         vals[8].(core.TokenUsage),
			DurationMs:    vals[9].(int64),
		}
	})
}
