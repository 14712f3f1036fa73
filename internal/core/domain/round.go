package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	UndefinedPhase RoundPhase = iota
	InputRegistrationPhase
	OutputRegistrationPhase
	TransactionSigningPhase
	EndedPhase
)

type RoundPhase int

func (p RoundPhase) String() string {
	switch p {
	case InputRegistrationPhase:
		return "INPUT_REGISTRATION_PHASE"
	case OutputRegistrationPhase:
		return "OUTPUT_REGISTRATION_PHASE"
	case TransactionSigningPhase:
		return "TRANSACTION_SIGNING_PHASE"
	case EndedPhase:
		return "ENDED_PHASE"
	default:
		return "UNDEFINED_PHASE"
	}
}

// Round is the coordinator side view of a coinjoin round, rebuilt from its events.
type Round struct {
	Id                string
	StartingTimestamp int64
	EndingTimestamp   int64
	Phase             RoundPhase
	Failed            bool
	FailReason        string
	Alices            map[string]Alice
	Tx                string
	Txid              string
	Version           uint
	changes           []RoundEvent
}

// RoundState is the snapshot of a round exposed by the coordinator.
type RoundState struct {
	Id                string
	Phase             RoundPhase
	StartingTimestamp int64
	EndingTimestamp   int64
	AliceCount        int
	InputCount        int
	// Inputs are published once the round enters the signing phase.
	Inputs     Coins
	Tx         string
	Txid       string
	Failed     bool
	FailReason string
}

func (s RoundState) IsEnded() bool {
	return s.Phase == EndedPhase
}

func (s RoundState) Succeeded() bool {
	return s.Phase == EndedPhase && !s.Failed
}

func NewRound() *Round {
	return &Round{
		Id:      uuid.New().String(),
		Alices:  make(map[string]Alice),
		changes: make([]RoundEvent, 0),
	}
}

func NewRoundFromEvents(events []RoundEvent) *Round {
	r := &Round{}

	for _, event := range events {
		r.On(event, true)
	}

	r.changes = append([]RoundEvent{}, events...)

	return r
}

func (r *Round) Events() []RoundEvent {
	return r.changes
}

func (r *Round) On(event RoundEvent, replayed bool) {
	switch e := event.(type) {
	case RoundStarted:
		r.Phase = InputRegistrationPhase
		r.Id = e.Id
		r.StartingTimestamp = e.Timestamp
	case InputsRegistered:
		if r.Alices == nil {
			r.Alices = make(map[string]Alice)
		}
		r.Alices[e.Alice.Id] = e.Alice
	case OutputRegistrationStarted:
		r.Phase = OutputRegistrationPhase
	case OutputsRegistered:
		alice := r.Alices[e.AliceId]
		alice.Receivers = append([]Receiver{}, e.Receivers...)
		r.Alices[e.AliceId] = alice
	case TransactionSigningStarted:
		r.Phase = TransactionSigningPhase
		r.Tx = e.Tx
	case RoundFinalized:
		r.Phase = EndedPhase
		r.Tx = e.Tx
		r.Txid = e.Txid
		r.EndingTimestamp = e.Timestamp
	case RoundFailed:
		r.Phase = EndedPhase
		r.Failed = true
		r.FailReason = e.Err
		r.EndingTimestamp = e.Timestamp
	}

	if replayed {
		r.Version++
	}
}

func (r *Round) StartRegistration() ([]RoundEvent, error) {
	if r.Phase != UndefinedPhase {
		return nil, fmt.Errorf("not in a valid phase to start input registration")
	}

	event := RoundStarted{
		Id:        r.Id,
		Timestamp: time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) RegisterInputs(alice Alice) ([]RoundEvent, error) {
	if r.Phase != InputRegistrationPhase || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid phase to register inputs")
	}
	if err := alice.validate(true); err != nil {
		return nil, err
	}
	if _, ok := r.Alices[alice.Id]; ok {
		return nil, fmt.Errorf("alice %s already registered", alice.Id)
	}
	for _, in := range alice.Inputs {
		if r.includes(in) {
			return nil, fmt.Errorf("input %s already registered", in.Outpoint)
		}
	}

	event := InputsRegistered{
		Id:    r.Id,
		Alice: Alice{Id: alice.Id, Inputs: alice.Inputs},
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) StartOutputRegistration() ([]RoundEvent, error) {
	if r.Phase != InputRegistrationPhase || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid phase to start output registration")
	}
	if len(r.Alices) <= 0 {
		return nil, fmt.Errorf("no inputs registered")
	}

	event := OutputRegistrationStarted{Id: r.Id}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) RegisterOutputs(aliceId string, receivers []Receiver) ([]RoundEvent, error) {
	if r.Phase != OutputRegistrationPhase || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid phase to register outputs")
	}
	alice, ok := r.Alices[aliceId]
	if !ok {
		return nil, fmt.Errorf("alice %s not found", aliceId)
	}
	if len(alice.Receivers) > 0 {
		return nil, fmt.Errorf("alice %s already registered outputs", aliceId)
	}
	alice.Receivers = receivers
	if err := alice.validate(false); err != nil {
		return nil, err
	}

	event := OutputsRegistered{
		Id:        r.Id,
		AliceId:   aliceId,
		Receivers: receivers,
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) StartSigning(tx string) ([]RoundEvent, error) {
	if len(tx) <= 0 {
		return nil, fmt.Errorf("missing unsigned round tx")
	}
	if r.Phase != OutputRegistrationPhase || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid phase to start signing")
	}

	event := TransactionSigningStarted{Id: r.Id, Tx: tx}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) Finalize(tx, txid string) ([]RoundEvent, error) {
	if len(tx) <= 0 {
		return nil, fmt.Errorf("missing signed round tx")
	}
	if len(txid) <= 0 {
		return nil, fmt.Errorf("missing round txid")
	}
	if r.Phase != TransactionSigningPhase || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid phase to finalize round")
	}

	event := RoundFinalized{
		Id:        r.Id,
		Tx:        tx,
		Txid:      txid,
		Timestamp: time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) Fail(err error) []RoundEvent {
	if r.Failed || r.Phase == EndedPhase {
		return nil
	}
	event := RoundFailed{
		Id:        r.Id,
		Err:       err.Error(),
		Timestamp: time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}
}

func (r *Round) IsStarted() bool {
	return !r.IsFailed() && !r.IsEnded() && r.Phase != UndefinedPhase
}

func (r *Round) IsEnded() bool {
	return !r.IsFailed() && r.Phase == EndedPhase
}

func (r *Round) IsFailed() bool {
	return r.Failed
}

func (r *Round) InputCount() int {
	count := 0
	for _, alice := range r.Alices {
		count += len(alice.Inputs)
	}
	return count
}

// Inputs returns all registered inputs.
func (r *Round) Inputs() Coins {
	ids := make([]string, 0, len(r.Alices))
	for id := range r.Alices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	inputs := make(Coins, 0, r.InputCount())
	for _, id := range ids {
		inputs = append(inputs, r.Alices[id].Inputs...)
	}
	return inputs
}

// AliceList returns the registered alices sorted by id.
func (r *Round) AliceList() []Alice {
	alices := make([]Alice, 0, len(r.Alices))
	for _, alice := range r.Alices {
		alices = append(alices, alice)
	}
	sort.Slice(alices, func(i, j int) bool {
		return alices[i].Id < alices[j].Id
	})
	return alices
}

func (r *Round) State() RoundState {
	var inputs Coins
	if r.Phase >= TransactionSigningPhase {
		inputs = r.Inputs()
	}
	return RoundState{
		Id:                r.Id,
		Phase:             r.Phase,
		StartingTimestamp: r.StartingTimestamp,
		EndingTimestamp:   r.EndingTimestamp,
		AliceCount:        len(r.Alices),
		InputCount:        r.InputCount(),
		Inputs:            inputs,
		Tx:                r.Tx,
		Txid:              r.Txid,
		Failed:            r.Failed,
		FailReason:        r.FailReason,
	}
}

func (r *Round) includes(coin Coin) bool {
	for _, alice := range r.Alices {
		for _, in := range alice.Inputs {
			if in.Outpoint == coin.Outpoint {
				return true
			}
		}
	}
	return false
}

func (r *Round) raise(event RoundEvent) {
	if r.changes == nil {
		r.changes = make([]RoundEvent, 0)
	}
	r.changes = append(r.changes, event)
	r.On(event, false)
}
