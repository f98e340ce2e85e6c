// Package cases persists the mutable half of the runtime: the current
// state and consent decisions of one (user, service) pair. The runtime
// mutates a case only through the state machine and consent manager; it
// never deletes one — deletion is an administrative action outside the
// runtime.
package cases

import (
	"context"
	"time"

	"github.com/govlegible/civitas/pkg/artefact"
	"github.com/govlegible/civitas/pkg/consent"
	cerr "github.com/govlegible/civitas/pkg/errors"
	"github.com/govlegible/civitas/pkg/statemachine"
)

// Case is one (user, service) interaction instance.
type Case struct {
	ServiceID string             `json:"serviceId"`
	UserID    string             `json:"userId"`
	State     string             `json:"state"`
	Decisions []consent.Decision `json:"decisions,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Store persists cases keyed by (user, service).
type Store interface {
	Get(ctx context.Context, userID, serviceID string) (*Case, error)
	Put(ctx context.Context, c Case) error
}

// Resume rebuilds the live state machine and consent manager pair for a
// persisted case, positioned where the case left off.
func Resume(c *Case, svc *artefact.Service) (*statemachine.Machine, *consent.Manager, error) {
	if svc == nil {
		return nil, nil, cerr.Newf(cerr.CodeNotFound, "no artefacts for service %q", c.ServiceID)
	}
	var machine *statemachine.Machine
	if svc.StateModel != nil {
		var err error
		machine, err = statemachine.Resume(svc.StateModel, c.State)
		if err != nil {
			return nil, nil, err
		}
	}
	var manager *consent.Manager
	if svc.Consent != nil {
		manager = consent.Resume(svc.Consent, c.Decisions)
	}
	return machine, manager, nil
}

// NewCase opens a case for a first interaction with a service.
func NewCase(userID string, svc *artefact.Service) Case {
	now := time.Now().UTC()
	c := Case{
		ServiceID: svc.ID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if svc.StateModel != nil {
		c.State = svc.StateModel.InitialState()
	}
	return c
}
