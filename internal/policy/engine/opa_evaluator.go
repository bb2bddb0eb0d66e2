package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	userdomain "imaro-auth/backend/internal/user/domain"
)

const policyQuery = "data.imaro.access"

// DefaultPolicy denies inactive accounts everywhere and incomplete profiles where a request needs one.
const DefaultPolicy = `package imaro.access

default reason := ""

reason := "account_deactivated" if {
	not input.user.active
}

reason := "profile_incomplete" if {
	input.user.active
	input.request.requires_profile
	not input.user.profile_completed
}

default allow := false

allow if reason == ""
`

// OPAEvaluator evaluates the access policy with an in-process OPA Rego engine.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles module, or DefaultPolicy when module is empty. The module must
// declare package imaro.access with rules allow and reason.
func NewOPAEvaluator(ctx context.Context, module string) (*OPAEvaluator, error) {
	if module == "" {
		module = DefaultPolicy
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("access.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// HealthCheck evaluates the policy against a fixed active user.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	d, err := e.Evaluate(ctx, &userdomain.User{Active: true, ProfileCompleted: true}, Request{})
	if err != nil {
		return err
	}
	if !d.Allow {
		return errors.New("access policy denies a complete active user")
	}
	return nil
}

// Evaluate implements Evaluator.
func (e *OPAEvaluator) Evaluate(ctx context.Context, user *userdomain.User, req Request) (Decision, error) {
	if user == nil {
		return Decision{}, errors.New("evaluate access: nil user")
	}
	input := map[string]interface{}{
		"user": map[string]interface{}{
			"id":                user.ID,
			"active":            user.Active,
			"profile_completed": user.ProfileCompleted,
			"auth_method":       string(user.AuthMethod),
		},
		"request": map[string]interface{}{
			"requires_profile": req.RequiresProfile,
		},
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate access: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, errors.New("evaluate access: policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("evaluate access: unexpected result %T", rs[0].Expressions[0].Value)
	}
	allow, _ := doc["allow"].(bool)
	reason, _ := doc["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}
