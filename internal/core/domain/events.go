package domain

type RoundEvent interface {
	isEvent()
}

func (r RoundStarted) isEvent()              {}
func (r InputsRegistered) isEvent()          {}
func (r OutputRegistrationStarted) isEvent() {}
func (r OutputsRegistered) isEvent()         {}
func (r TransactionSigningStarted) isEvent() {}
func (r RoundFinalized) isEvent()            {}
func (r RoundFailed) isEvent()               {}

type RoundStarted struct {
	Id        string
	Timestamp int64
}

type InputsRegistered struct {
	Id    string
	Alice Alice
}

type OutputRegistrationStarted struct {
	Id string
}

type OutputsRegistered struct {
	Id        string
	AliceId   string
	Receivers []Receiver
}

type TransactionSigningStarted struct {
	Id string
	Tx string
}

type RoundFinalized struct {
	Id        string
	Tx        string
	Txid      string
	Timestamp int64
}

type RoundFailed struct {
	Id        string
	Err       string
	Timestamp int64
}
