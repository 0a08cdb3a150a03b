package fulfillment

import (
	"context"
	"fmt"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// Step results.
const (
	StepSuccess = "SUCCESS"
	StepFailed  = "FAILED"
	StepError   = "ERROR"
)

// SimulateInput configures an end-to-end dry run.
type SimulateInput struct {
	PlanID        domain.PlanID
	CustomerEmail string
	CustomerName  string
}

// Step is one stage of a simulated order.
type Step struct {
	Step   int         `json:"step"`
	Name   string      `json:"name"`
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// SimulationReport describes a simulated order from provisioning to notification.
type SimulationReport struct {
	SessionID     string        `json:"sessionId"`
	PlanType      domain.PlanID `json:"planType"`
	CustomerEmail string        `json:"customerEmail"`
	ChannelURL    string        `json:"channelUrl,omitempty"`
	Success       bool          `json:"success"`
	Steps         []Step        `json:"steps"`
	Errors        []string      `json:"errors"`
}

func (r *SimulationReport) add(step Step) {
	r.Steps = append(r.Steps, step)
	if step.Status != StepSuccess {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", step.Name, step.Error))
	}
}

// Simulate runs each fulfillment stage for a fake session without a payment
// and reports every step separately.
func (s *Service) Simulate(ctx context.Context, in SimulateInput) SimulationReport {
	if in.PlanID == "" {
		in.PlanID = domain.PlanSimple
	}
	if in.CustomerEmail == "" {
		in.CustomerEmail = "test@example.com"
	}
	if in.CustomerName == "" {
		in.CustomerName = "Test User"
	}

	report := SimulationReport{
		SessionID:     "cs_test_e2e_" + uuid.NewString(),
		PlanType:      in.PlanID,
		CustomerEmail: in.CustomerEmail,
		Steps:         []Step{},
		Errors:        []string{},
	}
	log := ctxlog.FromContext(ctx).With("session_id", report.SessionID)
	log.Info("end-to-end simulation started", "plan", in.PlanID)

	plan, ok := domain.LookupPlan(in.PlanID)
	if !ok {
		report.add(Step{Step: 1, Name: "Discord Channel Creation", Status: StepFailed, Error: domain.ErrUnknownPlan.Error()})
		return report
	}

	result, err := s.provisioner.Provision(ctx, ProvisionRequest{
		Plan:          plan,
		SessionID:     report.SessionID,
		CustomerEmail: in.CustomerEmail,
		CustomerName:  in.CustomerName,
	})
	if err != nil {
		report.add(Step{Step: 1, Name: "Discord Channel Creation", Status: StepError, Error: err.Error()})
		return report
	}
	report.ChannelURL = result.ChannelURL
	report.add(Step{Step: 1, Name: "Discord Channel Creation", Status: StepSuccess, Result: result.ChannelURL})

	record := s.correlator.NewRecord(domain.ChannelRecord{
		SessionID:     report.SessionID,
		ChannelID:     result.ChannelID,
		ChannelURL:    result.ChannelURL,
		PlanType:      plan.ID,
		CustomerEmail: in.CustomerEmail,
		CustomerName:  in.CustomerName,
	})
	s.correlator.Store(ctx, record)
	report.add(Step{Step: 2, Name: "Channel Storage", Status: StepSuccess, Result: "channel stored"})

	stored, found := s.correlator.Get(ctx, report.SessionID)
	switch {
	case !found:
		report.add(Step{Step: 3, Name: "Storage Retrieval", Status: StepFailed, Error: "channel not found"})
	case stored.ChannelURL != result.ChannelURL:
		report.add(Step{Step: 3, Name: "Storage Retrieval", Status: StepFailed, Error: "URL mismatch"})
	default:
		report.add(Step{Step: 3, Name: "Storage Retrieval", Status: StepSuccess, Result: stored})
	}

	order := Order{
		SessionID:     report.SessionID,
		PlanID:        plan.ID,
		CustomerEmail: in.CustomerEmail,
		AmountTotal:   plan.PriceCents,
		Source:        SourceE2E,
	}
	if err := s.notifier.Notify(ctx, newCustomerMessage(order, record)); err != nil {
		report.add(Step{Step: 4, Name: "Admin Notification", Status: StepError, Error: err.Error()})
	} else {
		report.add(Step{Step: 4, Name: "Admin Notification", Status: StepSuccess, Result: "notification sent"})
	}

	report.Success = len(report.Errors) == 0
	log.Info("end-to-end simulation finished", "success", report.Success, "errors", len(report.Errors))
	return report
}
