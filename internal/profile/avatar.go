package profile

import (
	"fmt"
	"hash/fnv"

	"github.com/memorymate/companion/internal/image"
)

// Avatar derivation clamps the agent's age into one of six decade
// buckets and hashes (name, bucket) to pick among a small fixed set of
// bundled portraits per (gender, bucket). The same inputs always pick
// the same portrait.
const (
	minAvatarAge = 20
	maxAvatarAge = 79

	avatarCandidates = 3
	avatarSize       = 256
)

func avatarFor(name string, age int, gender Gender) image.Ref {
	bucket := avatarBucket(age)

	h := fnv.New32a()
	h.Write([]byte(name))
	h.Write([]byte{byte(bucket)})
	pick := h.Sum32() % avatarCandidates

	return image.Ref{
		Path:     fmt.Sprintf("assets/avatars/%s/%ds-%d.png", avatarGenderDir(gender), 20+bucket*10, pick),
		Width:    avatarSize,
		Height:   avatarSize,
		MIMEType: image.PNG,
	}
}

// avatarBucket maps an age to a decade index 0..5 covering 20-79.
func avatarBucket(age int) int {
	if age < minAvatarAge {
		age = minAvatarAge
	}
	if age > maxAvatarAge {
		age = maxAvatarAge
	}
	return (age - minAvatarAge) / 10
}

func avatarGenderDir(gender Gender) string {
	switch gender {
	case Male:
		return "male"
	case Female:
		return "female"
	default:
		return "neutral"
	}
}
