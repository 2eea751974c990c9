package main

import (
	"encoding/json"
	"fmt"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/engine"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRulesCmd(boot bootstrapFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with automation rules",
	}

	var (
		ruleID     string
		targetType string
		targetID   string
		trigger    string
		vars       string
	)
	execute := &cobra.Command{
		Use:   "execute",
		Short: "Run one rule against one target and record the outcome",
		Long: `Run one rule against one target, exactly like the API's execute
endpoint. The outcome is written to the execution ledger.

Example:
  automationctl rules execute --rule <id> --target-type engagement --target-id <id>`,
		RunE: withEnv(boot, func(cmd *cobra.Command, _ []string, e *env) error {
			req, err := buildExecuteRequest(ruleID, targetType, targetID, trigger, vars)
			if err != nil {
				return err
			}
			out, err := e.executor.ExecuteRule(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if out.Matched && !out.Succeeded() {
				return fmt.Errorf("rule %s failed: %s", out.RuleID, out.Error)
			}
			return nil
		}),
	}
	execute.Flags().StringVar(&ruleID, "rule", "", "rule id (required)")
	execute.Flags().StringVar(&targetType, "target-type", string(domain.TargetEngagement), "client, project or engagement")
	execute.Flags().StringVar(&targetID, "target-id", "", "target id (required)")
	execute.Flags().StringVar(&trigger, "trigger", string(domain.TriggerManual), "trigger type to record")
	execute.Flags().StringVar(&vars, "context", "", "extra template variables as a JSON object")
	_ = execute.MarkFlagRequired("rule")
	_ = execute.MarkFlagRequired("target-id")

	cmd.AddCommand(execute)
	return cmd
}

func buildExecuteRequest(ruleID, targetType, targetID, trigger, vars string) (engine.Request, error) {
	var req engine.Request

	id, err := uuid.Parse(ruleID)
	if err != nil {
		return req, fmt.Errorf("invalid --rule %q: %w", ruleID, err)
	}
	kind, err := domain.ParseTargetKind(targetType)
	if err != nil {
		return req, err
	}
	tid, err := uuid.Parse(targetID)
	if err != nil {
		return req, fmt.Errorf("invalid --target-id %q: %w", targetID, err)
	}
	tt, err := domain.ParseTriggerType(trigger)
	if err != nil {
		return req, err
	}

	req = engine.Request{RuleID: id, Target: domain.TargetRef{Kind: kind, ID: tid}, Trigger: tt}
	if vars != "" {
		if err := json.Unmarshal([]byte(vars), &req.Overrides); err != nil {
			return engine.Request{}, fmt.Errorf("invalid --context: %w", err)
		}
	}
	return req, nil
}
