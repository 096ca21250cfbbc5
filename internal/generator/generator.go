// Package generator produces throwaway credentials: usernames, passwords
// and phone-like strings. Everything here is pure and never fails.
package generator

import (
	"fmt"
	"math/rand"
	"strings"
)

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits    = "0123456789"
	symbols   = "!@#$%^&*"

	// Alnum is the alphabet used for random mailbox local parts.
	Alnum = lowercase + digits
)

var usernamePrefixes = []string{"gamer", "player", "user", "pro", "master"}

var phonePrefixes = []string{"03", "05", "07", "08", "09"}

// Username returns prefix+separator+counter when a custom prefix is given
// (counter is 1-based), otherwise a random dictionary prefix followed by a
// random 6-digit suffix.
func Username(prefix, separator string, counter int) string {
	if prefix != "" && counter > 0 {
		return fmt.Sprintf("%s%s%d", prefix, separator, counter)
	}
	p := usernamePrefixes[rand.Intn(len(usernamePrefixes))]
	return fmt.Sprintf("%s%06d", p, 100000+rand.Intn(900000))
}

// Password returns a 12-character password with at least one character from
// each of the lowercase, uppercase, digit and symbol classes.
func Password() string {
	chars := []byte{
		lowercase[rand.Intn(len(lowercase))],
		uppercase[rand.Intn(len(uppercase))],
		digits[rand.Intn(len(digits))],
		symbols[rand.Intn(len(symbols))],
	}
	all := lowercase + uppercase + digits + symbols
	for i := 0; i < 8; i++ {
		chars = append(chars, all[rand.Intn(len(all))])
	}
	rand.Shuffle(len(chars), func(i, j int) {
		chars[i], chars[j] = chars[j], chars[i]
	})
	return string(chars)
}

// Phone returns a decorative hyphenated phone string. No uniqueness is
// implied.
func Phone() string {
	prefix := phonePrefixes[rand.Intn(len(phonePrefixes))]
	middle := fmt.Sprintf("%04d", 1000+rand.Intn(9000))
	end := fmt.Sprintf("%04d", 1000+rand.Intn(9000))
	return fmt.Sprintf("+84-%s%s-%s-%s", prefix, middle[:1], middle[1:], end)
}

// RandomString returns n characters drawn uniformly from alphabet.
func RandomString(n int, alphabet string) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return b.String()
}
