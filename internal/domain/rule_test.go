package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutomationRule_Compile(t *testing.T) {
	rule := AutomationRule{
		TriggerType: TriggerTimeWindow,
		TriggerConditions: json.RawMessage(`[
			{"field":"hoursUntilStart","op":">=","value":1},
			{"field":"hoursUntilStart","operator":"lte","value":3}
		]`),
		Actions: json.RawMessage(`[
			{"type":"send_notification","name":"Reminder","parameters":{"to":"{{client.email}}"}}
		]`),
	}
	rule.ID = uuid.New()

	compiled, err := rule.Compile()
	require.NoError(t, err)
	require.Len(t, compiled.Conditions, 2)
	assert.Equal(t, OpGTE, compiled.Conditions[0].Operator)
	assert.Equal(t, OpLTE, compiled.Conditions[1].Operator)
	assert.Equal(t, 1.0, compiled.Conditions[0].Value)
	require.Len(t, compiled.Actions, 1)
	assert.Equal(t, ActionSendNotification, compiled.Actions[0].Type)
	assert.Equal(t, "{{client.email}}", compiled.Actions[0].Parameters["to"])
}

func TestAutomationRule_Compile_UnknownActionType(t *testing.T) {
	rule := AutomationRule{
		TriggerType: TriggerManual,
		Actions:     json.RawMessage(`[{"type":"launch_rocket","parameters":{}}]`),
	}

	_, err := rule.Compile()
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "launch_rocket")
}

func TestAutomationRule_Compile_UnknownOperator(t *testing.T) {
	rule := AutomationRule{
		TriggerType:       TriggerManual,
		TriggerConditions: json.RawMessage(`[{"field":"status","op":"~=","value":"x"}]`),
	}

	_, err := rule.Compile()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAutomationRule_Compile_MalformedJSON(t *testing.T) {
	rule := AutomationRule{
		TriggerType: TriggerManual,
		Actions:     json.RawMessage(`{"type":`),
	}

	_, err := rule.Compile()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAutomationRule_Compile_EmptyConditions(t *testing.T) {
	rule := AutomationRule{
		TriggerType:       TriggerManual,
		TriggerConditions: json.RawMessage(`[]`),
		Actions:           json.RawMessage(`[{"type":"generate_report","params":{"report_type":"monthly"}}]`),
	}

	compiled, err := rule.Compile()
	require.NoError(t, err)
	assert.Empty(t, compiled.Conditions)
	assert.Equal(t, "monthly", compiled.Actions[0].Parameters["report_type"])
	assert.Equal(t, "generate_report", compiled.Actions[0].Label())
}

func TestValidateRuleInput(t *testing.T) {
	actions := json.RawMessage(`[{"type":"assign_task","parameters":{"title":"x"}}]`)

	assert.NoError(t, ValidateRuleInput("ok", TriggerEntityCreated, nil, actions))
	assert.ErrorIs(t, ValidateRuleInput("", TriggerEntityCreated, nil, actions), ErrConfiguration)
	assert.ErrorIs(t, ValidateRuleInput("ok", TriggerType("cron"), nil, actions), ErrConfiguration)
	assert.ErrorIs(t, ValidateRuleInput("ok", TriggerManual, nil, json.RawMessage(`[]`)), ErrConfiguration)
}

func TestSuccessRateFor(t *testing.T) {
	assert.Equal(t, 0.0, SuccessRateFor(0, 0))
	assert.Equal(t, 0.75, SuccessRateFor(4, 1))
	assert.Equal(t, 0.0, SuccessRateFor(3, 3))
}

func TestProject_BudgetPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Project{Budget: 0, Spent: 10}.BudgetPercentage())
	assert.Equal(t, 80.0, Project{Budget: 1000, Spent: 800}.BudgetPercentage())
}
