package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InviteStatusMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *InviteStatusResponse)
}

func (e InviteStatusMessage) Type() string { return "user.invite_status" }

// InviteStatusResponse distinguishes unknown tokens from expired ones.
// That distinction exists only here: it lets the acceptance page tell a
// prospective user why their link no longer works, while the acceptance
// operation itself stays deliberately opaque.
type InviteStatusResponse struct {
	Found   bool
	Expired bool
	Email   string
}

// InviteStatusHandler is the read-only view over a pending invitation.
type InviteStatusHandler struct {
	repo RepositoryManager
}

// NewInviteStatusHandler creates the handler.
func NewInviteStatusHandler(repo RepositoryManager) *InviteStatusHandler {
	return &InviteStatusHandler{repo: repo}
}

func (h *InviteStatusHandler) Execute(ctx context.Context, event InviteStatusMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invitation status lookup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InviteStatusHandler) execute(ctx context.Context, event InviteStatusMessage) error {
	resp := &InviteStatusResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByInvitationToken(ctx, event.Token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve invitation")
	}

	if !user.InvitationPending() {
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	resp.Found = true
	resp.Expired = user.InvitationExpired(time.Now())
	resp.Email = user.Email

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
