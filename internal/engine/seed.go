package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/rand/v2"
	"strconv"
)

// The seed is a running sha256 accumulation over everything that happened in
// the round: each purchase folds in the buyer, the ticket count, the block
// height and the order message before the buyer can know whether the
// purchase closes the round. It is a fairness mechanism relying on the
// unpredictability of future inputs, not a cryptographic one.

func initialSeed(creator string, height int64) string {
	return foldSeed("", creator, strconv.FormatInt(height, 10))
}

func updateSeed(seed, actor string, count uint32, height int64, message string) string {
	return foldSeed(seed, actor, strconv.FormatUint(uint64(count), 10), strconv.FormatInt(height, 10), message)
}

func finalizeSeed(seed, actor string, height int64) string {
	return foldSeed(seed, actor, strconv.FormatInt(height, 10))
}

func foldSeed(parts ...string) string {
	h := sha256.New()
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// newDrawRand seeds a pcg64 generator from the finalized seed. The mapping
// is fixed: the first 16 decoded bytes become the PCG state words, so a
// given seed always yields the same draw sequence.
func newDrawRand(seed string) (*rand.Rand, error) {
	raw, err := hex.DecodeString(seed)
	if err != nil || len(raw) < 16 {
		return nil, ErrInvalidSeed
	}
	hi := binary.BigEndian.Uint64(raw[:8])
	lo := binary.BigEndian.Uint64(raw[8:16])
	return rand.New(rand.NewPCG(hi, lo)), nil
}
