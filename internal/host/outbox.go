package host

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

// Outbox records instructions for external collaborators to pick up. Rows are written
// in the caller's transaction and vanish with it on rollback.
type Outbox struct {
	clock func() time.Time
}

// NewOutbox builds an Outbox.
func NewOutbox(clock func() time.Time) *Outbox {
	if clock == nil {
		clock = time.Now
	}
	return &Outbox{clock: clock}
}

// Transfer records a bank transfer.
func (o *Outbox) Transfer(store *ledger.Store, height uint64, transfer hostenv.BankTransfer) error {
	return o.append(store, height, transfer.From, transfer)
}

// TransferToken records a token transfer.
func (o *Outbox) TransferToken(store *ledger.Store, height uint64, transfer hostenv.TokenTransfer) error {
	return o.append(store, height, transfer.From, transfer)
}

// Instantiate records a token instantiation request. The token address arrives later
// through an acknowledgement call.
func (o *Outbox) Instantiate(store *ledger.Store, height uint64, request hostenv.InstantiateToken) (string, error) {
	return "", o.append(store, height, request.Campaign, request)
}

func (o *Outbox) append(store *ledger.Store, height uint64, source string, instruction hostenv.Instruction) error {
	payload, err := json.Marshal(instruction)
	if err != nil {
		return fmt.Errorf("encode %s: %w", instruction.Kind(), err)
	}
	entry := ledger.OutboxEntry{
		Kind:             instruction.Kind(),
		Source:           source,
		Height:           height,
		PayloadJSON:      string(payload),
		CreatedAtSeconds: o.clock().UTC().Unix(),
	}
	return store.AppendOutbox(&entry)
}

type outboxTokens struct {
	outbox *Outbox
}

func (t outboxTokens) Transfer(store *ledger.Store, height uint64, transfer hostenv.TokenTransfer) error {
	return t.outbox.TransferToken(store, height, transfer)
}
