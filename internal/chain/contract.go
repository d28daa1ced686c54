package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rotisserie/eris"
)

// commitmentABI is the interface of the verdict commitment contract. The
// contract assigns a protocol request id to each commit and emits it in
// VerdictCommitted; VerdictRevealed fires once the timelock plaintext is
// available on chain.
const commitmentABI = `[
	{
		"type": "function",
		"name": "commitVerdict",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "revealHeight", "type": "uint256"},
			{"name": "ciphertext", "type": "bytes"}
		],
		"outputs": [{"name": "requestId", "type": "uint256"}]
	},
	{
		"type": "event",
		"name": "VerdictCommitted",
		"inputs": [
			{"name": "requestId", "type": "uint256", "indexed": true},
			{"name": "committer", "type": "address", "indexed": true},
			{"name": "revealHeight", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "VerdictRevealed",
		"inputs": [
			{"name": "requestId", "type": "uint256", "indexed": true},
			{"name": "plaintext", "type": "bytes", "indexed": false}
		]
	}
]`

var (
	contractABI abi.ABI

	// CommittedEventID and RevealedEventID are the topic-0 signatures used
	// to filter logs.
	CommittedEventID common.Hash
	RevealedEventID  common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(commitmentABI))
	if err != nil {
		panic(err)
	}
	contractABI = parsed
	CommittedEventID = parsed.Events["VerdictCommitted"].ID
	RevealedEventID = parsed.Events["VerdictRevealed"].ID
}

// PackCommit encodes the commitVerdict calldata.
func PackCommit(revealHeight uint64, ciphertext []byte) ([]byte, error) {
	data, err := contractABI.Pack("commitVerdict", new(big.Int).SetUint64(revealHeight), ciphertext)
	if err != nil {
		return nil, eris.Wrap(err, "chain: pack commitVerdict")
	}
	return data, nil
}

// ParseCommittedEvent extracts the protocol request id from a confirmed
// receipt. Logs are filtered by both the contract address and the event
// signature; ordering is not trusted and the first log matching both wins.
// The second return is false when no such log exists, which signals an ABI
// or contract mismatch to the caller.
func ParseCommittedEvent(receipt *types.Receipt, contract common.Address) (*big.Int, bool) {
	for _, log := range receipt.Logs {
		if log == nil || log.Address != contract {
			continue
		}
		if len(log.Topics) < 2 || log.Topics[0] != CommittedEventID {
			continue
		}
		return new(big.Int).SetBytes(log.Topics[1].Bytes()), true
	}
	return nil, false
}

// ParseRevealedLog decodes one VerdictRevealed log into a reveal event.
func ParseRevealedLog(log types.Log) (RevealEvent, error) {
	if len(log.Topics) < 2 || log.Topics[0] != RevealedEventID {
		return RevealEvent{}, eris.New("chain: log is not a VerdictRevealed event")
	}

	values, err := contractABI.Events["VerdictRevealed"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return RevealEvent{}, eris.Wrap(err, "chain: unpack VerdictRevealed")
	}
	payload, ok := values[0].([]byte)
	if !ok {
		return RevealEvent{}, eris.New("chain: unexpected VerdictRevealed payload type")
	}

	return RevealEvent{
		ProtocolRequestID: new(big.Int).SetBytes(log.Topics[1].Bytes()),
		Payload:           payload,
		TxHash:            log.TxHash,
	}, nil
}
