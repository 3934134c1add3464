package dh1080

import "strings"

// Dialect distinguishes the two interoperable wire framings for DH1080
// exchange messages.
type Dialect int

const (
	// DialectIrssi uses "DH1080_INIT <pubkey>[ CBC]" / "DH1080_FINISH
	// <pubkey>[ CBC]", with mode selected by an optional trailing token.
	DialectIrssi Dialect = iota
	// DialectMIRC uses "DH1080_INIT_cbc <pubkey>" / "DH1080_FINISH_cbc
	// <pubkey>", with CBC baked into the command name.
	DialectMIRC
)

// Stage distinguishes the initiator's INIT message from the responder's
// FINISH message.
type Stage int

const (
	StageInit Stage = iota
	StageFinish
)

// Message is a parsed DH1080 exchange message.
type Message struct {
	Stage   Stage
	Dialect Dialect
	CBC     bool
	PubKey  string
}

const (
	tokenInit       = "DH1080_INIT"
	tokenFinish     = "DH1080_FINISH"
	tokenInitCBC    = "DH1080_INIT_cbc"
	tokenFinishCBC  = "DH1080_FINISH_cbc"
	tokenCBCSuffix  = "CBC"
)

// Parse recognizes a DH1080 message from plain NOTICE text (the normal
// wire form) or from a CTCP-unwrapped payload (also accepted per spec).
// Returns false if text is not a DH1080 message.
func Parse(text string) (Message, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return Message{}, false
	}

	switch fields[0] {
	case tokenInit:
		return Message{Stage: StageInit, Dialect: DialectIrssi, CBC: len(fields) >= 3 && fields[2] == tokenCBCSuffix, PubKey: fields[1]}, true
	case tokenFinish:
		return Message{Stage: StageFinish, Dialect: DialectIrssi, CBC: len(fields) >= 3 && fields[2] == tokenCBCSuffix, PubKey: fields[1]}, true
	case tokenInitCBC:
		return Message{Stage: StageInit, Dialect: DialectMIRC, CBC: true, PubKey: fields[1]}, true
	case tokenFinishCBC:
		return Message{Stage: StageFinish, Dialect: DialectMIRC, CBC: true, PubKey: fields[1]}, true
	}

	return Message{}, false
}

// Format renders a DH1080 message using the given dialect and mode. The
// responder MUST reply using the same dialect the initiator chose.
func Format(stage Stage, dialect Dialect, cbc bool, pubKey string) string {
	var token string

	switch dialect {
	case DialectMIRC:
		if stage == StageInit {
			token = tokenInitCBC
		} else {
			token = tokenFinishCBC
		}
		return token + " " + pubKey
	default: // DialectIrssi
		if stage == StageInit {
			token = tokenInit
		} else {
			token = tokenFinish
		}
		if cbc {
			return token + " " + pubKey + " " + tokenCBCSuffix
		}
		return token + " " + pubKey
	}
}
