package parser

// detectPendingInteraction implements §4.4's pending-interaction rule: find
// the highest-indexed tool_use with no matching tool_result, then branch on
// its name. Returns nil if every tool_use has a matching result, or if the
// unmatched call is neither AskUserQuestion nor ExitPlanMode.
func detectPendingInteraction(toolUses []CliToolUseEvent, toolResults []CliToolResultEvent) *DetectedInteraction {
	answered := make(map[string]bool, len(toolResults))
	for _, r := range toolResults {
		answered[r.ToolUseID] = true
	}

	var pending *CliToolUseEvent
	for i := len(toolUses) - 1; i >= 0; i-- {
		if !answered[toolUses[i].ID] {
			pending = &toolUses[i]
			break
		}
	}
	if pending == nil {
		return nil
	}

	switch pending.Name {
	case "AskUserQuestion":
		return askUserQuestionInteraction(pending)
	case "ExitPlanMode":
		return &DetectedInteraction{
			Type:       InteractionPlanApproval,
			ToolCallID: pending.ID,
			Question:   "AI has finished planning, approve execution?",
		}
	default:
		return nil
	}
}

func askUserQuestionInteraction(call *CliToolUseEvent) *DetectedInteraction {
	questions, _ := call.Input["questions"].([]any)
	if len(questions) == 0 {
		return nil
	}
	q0, ok := questions[0].(map[string]any)
	if !ok {
		return nil
	}

	question, _ := q0["question"].(string)
	multiSelect, _ := q0["multiSelect"].(bool)

	var options []QuestionOption
	if rawOptions, ok := q0["options"].([]any); ok {
		for _, ro := range rawOptions {
			if om, ok := ro.(map[string]any); ok {
				if label, ok := om["label"].(string); ok {
					options = append(options, QuestionOption{Label: label})
				}
			}
		}
	}

	return &DetectedInteraction{
		Type:        InteractionAskUserQuestion,
		ToolCallID:  call.ID,
		Question:    question,
		Options:     options,
		MultiSelect: multiSelect,
	}
}
