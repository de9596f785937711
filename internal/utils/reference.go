package utils

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

const referenceCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateReference generates a unique reference for transactions
func GenerateReference(prefix string) string {
	result := make([]byte, 8)
	for i := range result {
		result[i] = referenceCharset[rand.Intn(len(referenceCharset))]
	}

	timestamp := time.Now().Format("20060102")
	return fmt.Sprintf("%s_%s_%s", prefix, timestamp, string(result))
}

// GenerateReferralCode derives a shareable referral code from a display name,
// slugified with a short random suffix to keep codes unique.
func GenerateReferralCode(displayName string) string {
	base := slug.Make(displayName)
	if base == "" {
		base = "ref"
	}
	if len(base) > 20 {
		base = base[:20]
	}

	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = referenceCharset[rand.Intn(len(referenceCharset))]
	}

	return strings.ToLower(fmt.Sprintf("%s-%s", base, suffix))
}
