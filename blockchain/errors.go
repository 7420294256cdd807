package blockchain

import "fmt"

// ErrorCode identifies a class of error the consensus engine can report, the
// stable taxonomy spec.md §7 requires RPC clients and peer-scoring to key
// off of.
type ErrorCode int

const (
	// ErrInvalidBlock indicates a block failed structural, PoW, timestamp,
	// or transaction validation.
	ErrInvalidBlock ErrorCode = iota

	// ErrInvalidTransaction indicates a transaction failed sanity or
	// input/output validation.
	ErrInvalidTransaction

	// ErrOrphanBlock indicates the block's parent is not yet known. Not a
	// rejection — the block is cached for a retry once the parent arrives.
	ErrOrphanBlock

	// ErrUTXONotFound indicates a referenced outpoint has no live entry.
	ErrUTXONotFound

	// ErrDoubleSpend indicates an outpoint is already spent by an earlier
	// input, either within the same block or by a conflicting mempool entry.
	ErrDoubleSpend

	// ErrProofOfWorkInvalid indicates the header hash exceeds its target.
	ErrProofOfWorkInvalid

	// ErrDifficultyMismatch indicates the header's difficulty bits do not
	// match the value the retargeting rule expects.
	ErrDifficultyMismatch

	// ErrSignatureInvalid indicates an ECDSA signature failed to verify.
	ErrSignatureInvalid

	// ErrScriptFailure indicates a locking/unlocking script pair did not
	// satisfy the spending predicate.
	ErrScriptFailure

	// ErrImmatureSpend indicates a coinbase output was spent before it
	// reached coinbase-maturity depth.
	ErrImmatureSpend

	// ErrBadCoinbaseValue indicates coinbase output value exceeds subsidy
	// plus accumulated fees.
	ErrBadCoinbaseValue

	// ErrSerializationError indicates a block or transaction failed to
	// decode from its wire form.
	ErrSerializationError
)

var errorCodeStrings = map[ErrorCode]string{
	ErrInvalidBlock:        "InvalidBlock",
	ErrInvalidTransaction:  "InvalidTransaction",
	ErrOrphanBlock:         "OrphanBlock",
	ErrUTXONotFound:        "UTXONotFound",
	ErrDoubleSpend:         "DoubleSpend",
	ErrProofOfWorkInvalid:  "ProofOfWorkInvalid",
	ErrDifficultyMismatch:  "DifficultyMismatch",
	ErrSignatureInvalid:    "SignatureInvalid",
	ErrScriptFailure:       "ScriptFailure",
	ErrImmatureSpend:       "ImmatureSpend",
	ErrBadCoinbaseValue:    "BadCoinbaseValue",
	ErrSerializationError:  "SerializationError",
}

func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(e))
}

// RuleError identifies an error that occurred while validating a block or
// transaction against the consensus rules. It carries a stable Code so
// callers (peer scoring, RPC) can classify the failure without string
// matching, plus a human-readable Reason.
type RuleError struct {
	Code   ErrorCode
	Reason string
}

func (e RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func ruleError(code ErrorCode, reason string) RuleError {
	return RuleError{Code: code, Reason: reason}
}

func ruleErrorf(code ErrorCode, format string, args ...interface{}) RuleError {
	return RuleError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// IsOrphan reports whether err is an orphan-block outcome — not a
// rejection, a request to retry once the parent arrives.
func IsOrphan(err error) bool {
	ruleErr, ok := err.(RuleError)
	return ok && ruleErr.Code == ErrOrphanBlock
}
