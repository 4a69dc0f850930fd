// Package ids centralizes identifier generation: random entity ids,
// time-sortable job/request ids, and deterministic content-addressed ids.
package ids

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// memoryNamespace is the fixed UUIDv5 namespace for Memory ids (spec §3).
// Conduit-specific, generated once and frozen so ids remain stable across
// deployments.
var memoryNamespace = uuid.MustParse("6f1c6e2a-6e2a-4a8f-9f0a-2c0f7f6a9b10")

// NewUUID returns a random v4 entity id.
func NewUUID() string {
	return uuid.New().String()
}

// MemoryID derives the deterministic id for a Memory row: UUIDv5 of the
// namespace with personaID ":" personalityID ":" contentHash as the name.
func MemoryID(personaID, personalityID, contentHash string) string {
	name := personaID + ":" + personalityID + ":" + contentHash
	return uuid.NewSHA1(memoryNamespace, []byte(name)).String()
}

// ContentHash returns a stable hex digest of text, used as the last
// component of MemoryID and for dedup fingerprints over attachment bytes.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// entropySource is shared across ULID generation calls; ulid.Monotonic
// wraps it to guarantee strictly increasing ids for ids minted within the
// same millisecond on this process.
var entropySource = ulid.Monotonic(rand.Reader, 0)

// NewULID returns a new time-sortable id, suitable for job ids and request
// ids where "created before" should also mean "sorts before".
func NewULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropySource).String()
}

// Fingerprint builds the deduplication fingerprint described in spec §4.1:
// a stable digest of (userID, personalityID, messageText, sorted referenced
// message ids, sorted attachment content hashes).
func Fingerprint(userID, personalityID, messageText string, referencedMessageIDs, attachmentHashes []string) string {
	refs := append([]string(nil), referencedMessageIDs...)
	sort.Strings(refs)
	hashes := append([]string(nil), attachmentHashes...)
	sort.Strings(hashes)

	var b strings.Builder
	b.WriteString(userID)
	b.WriteByte('|')
	b.WriteString(personalityID)
	b.WriteByte('|')
	b.WriteString(messageText)
	b.WriteByte('|')
	b.WriteString(strings.Join(refs, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(hashes, ","))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ReferenceID returns a 12-character opaque handle for correlating a
// terminal error with logs, per spec §7.
func ReferenceID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 12)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			// crypto/rand failure is unrecoverable entropy starvation; fall
			// back to a fixed but still 12-char placeholder rather than
			// panicking a request path.
			out[i] = alphabet[0]
			continue
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out)
}
