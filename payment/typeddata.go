package payment

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	walletgate "github.com/walletgate/walletgate-go"
)

// EIP-712 type hashes for the EIP-3009 transferWithAuthorization schema.
// These are fixed by the token standard; changing either breaks signature
// compatibility with every deployed asset contract.
var (
	domainTypeHash = crypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	transferTypeHash = crypto.Keccak256([]byte(
		"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))
)

// domainSeparator hashes the EIP-712 signing domain.
func domainSeparator(d walletgate.TypedDataDomain) []byte {
	var buf []byte
	buf = append(buf, domainTypeHash...)
	buf = append(buf, crypto.Keccak256([]byte(d.Name))...)
	buf = append(buf, crypto.Keccak256([]byte(d.Version))...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(d.ChainID).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(common.HexToAddress(d.VerifyingContract).Bytes(), 32)...)
	return crypto.Keccak256(buf)
}

// authorizationDigest computes the EIP-712 digest a wallet signs for the
// given transfer authorization under the given domain.
func authorizationDigest(auth *walletgate.PaymentAuthorization, d walletgate.TypedDataDomain) ([]byte, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if ok && value.Sign() < 0 {
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("walletgate/payment: value %q is not a non-negative decimal", auth.Value)
	}

	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil || len(nonceBytes) != 32 {
		return nil, fmt.Errorf("walletgate/payment: nonce must be 32 bytes of hex")
	}

	var buf []byte
	buf = append(buf, transferTypeHash...)
	buf = append(buf, common.LeftPadBytes(common.HexToAddress(auth.From).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(common.HexToAddress(auth.To).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(value.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(auth.ValidAfter).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(auth.ValidBefore).Bytes(), 32)...)
	buf = append(buf, nonceBytes...)
	structHash := crypto.Keccak256(buf)

	var msg []byte
	msg = append(msg, 0x19, 0x01)
	msg = append(msg, domainSeparator(d)...)
	msg = append(msg, structHash...)
	return crypto.Keccak256(msg), nil
}

// recoverSigner recovers the lowercase signer address from a 65-byte
// r||s||v signature over the digest. Both v in {0,1} and {27,28} are
// accepted.
func recoverSigner(digest []byte, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("walletgate/payment: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("walletgate/payment: signature must be 65 bytes, got %d", len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", fmt.Errorf("walletgate/payment: invalid recovery id %d", sig[64])
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("walletgate/payment: recover: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// SignAuthorization signs the authorization with the given secp256k1 private
// key, producing the hex signature a client would send. Exported for tests
// and local tooling; the service side never holds payer keys.
func SignAuthorization(auth *walletgate.PaymentAuthorization, d walletgate.TypedDataDomain, privKeyHex string) (string, error) {
	digest, err := authorizationDigest(auth, d)
	if err != nil {
		return "", err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("walletgate/payment: parse key: %w", err)
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("walletgate/payment: sign: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}
