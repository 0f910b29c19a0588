package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	logx "github.com/athena-research/athena-agent/pkg/logger"
)

// StateCheckpointer persists the request state so a polling viewer can
// follow the turn live. Checkpoint failures are logged and swallowed;
// the live view degrades but the turn keeps going.
type StateCheckpointer struct {
	store  contractx.Store
	logger zerolog.Logger
}

func NewCheckpointer(store contractx.Store) *StateCheckpointer {
	return &StateCheckpointer{
		store:  store,
		logger: logx.Component("checkpointer"),
	}
}

func (c *StateCheckpointer) Checkpoint(ctx context.Context, st *contractx.State) {
	if c == nil || st == nil || st.ID == "" {
		return
	}
	if err := c.store.UpdateState(ctx, st.ID, &st.Values); err != nil {
		c.logger.Warn().Err(err).Str("state_id", st.ID).Msg("checkpoint_failed")
	}
}
