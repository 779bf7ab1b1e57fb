// Package siwe implements the structured sign-in-with-wallet identity track:
// parsing the EIP-4361 message a wallet signs, deterministically rebuilding
// its canonical text, recovering the signer, and validating it against a
// server-issued single-use nonce.
package siwe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Message holds the parsed fields of a sign-in message.
type Message struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time // zero when absent
}

const header = " wants you to sign in with your Ethereum account:"

// String reconstructs the canonical message text. Field order and formatting
// are fixed by EIP-4361; signature recovery runs over exactly these bytes.
func (m *Message) String() string {
	var b strings.Builder
	b.WriteString(m.Domain)
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(m.Address)
	b.WriteString("\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.UTC().Format(time.RFC3339))
	if !m.ExpirationTime.IsZero() {
		fmt.Fprintf(&b, "\nExpiration Time: %s", m.ExpirationTime.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// Parse decodes the canonical message text into its structured fields.
func Parse(raw string) (*Message, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("siwe: message too short")
	}
	if !strings.HasSuffix(lines[0], header) {
		return nil, fmt.Errorf("siwe: missing sign-in header line")
	}

	m := &Message{
		Domain:  strings.TrimSuffix(lines[0], header),
		Address: lines[1],
	}
	if m.Domain == "" {
		return nil, fmt.Errorf("siwe: empty domain")
	}
	if lines[2] != "" {
		return nil, fmt.Errorf("siwe: expected blank line after address")
	}

	// Optional statement block: everything between the blank line after the
	// address and the blank line before the field block.
	i := 3
	var statement []string
	for ; i < len(lines); i++ {
		if lines[i] == "" {
			break
		}
		if strings.HasPrefix(lines[i], "URI: ") {
			break
		}
		statement = append(statement, lines[i])
	}
	m.Statement = strings.Join(statement, "\n")
	for i < len(lines) && lines[i] == "" {
		i++
	}

	for ; i < len(lines); i++ {
		key, val, ok := strings.Cut(lines[i], ": ")
		if !ok {
			return nil, fmt.Errorf("siwe: malformed field line %q", lines[i])
		}
		switch key {
		case "URI":
			m.URI = val
		case "Version":
			m.Version = val
		case "Chain ID":
			id, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("siwe: chain id: %w", err)
			}
			m.ChainID = id
		case "Nonce":
			m.Nonce = val
		case "Issued At":
			t, err := time.Parse(time.RFC3339, val)
			if err != nil {
				return nil, fmt.Errorf("siwe: issued at: %w", err)
			}
			m.IssuedAt = t
		case "Expiration Time":
			t, err := time.Parse(time.RFC3339, val)
			if err != nil {
				return nil, fmt.Errorf("siwe: expiration time: %w", err)
			}
			m.ExpirationTime = t
		default:
			// Unknown fields (Request ID, Resources) are tolerated but
			// not round-tripped; verification rebuilds the canonical
			// text, so a signature over extra fields will not match.
		}
	}

	if m.URI == "" || m.Version == "" || m.Nonce == "" || m.IssuedAt.IsZero() {
		return nil, fmt.Errorf("siwe: missing required field")
	}
	return m, nil
}

// RecoverAddress recovers the lowercase signer address from an EIP-191
// personal-sign signature over msg.
func RecoverAddress(msg string, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("siwe: signature must be 65 bytes, got %d", len(signature))
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", fmt.Errorf("siwe: invalid recovery id %d", sig[64])
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	digest := crypto.Keccak256([]byte(prefixed))

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("siwe: recover: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}
