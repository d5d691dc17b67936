// Package crypto generates random credentials for new records. Output is
// returned as byte slices so callers can zeroize it once stored.
package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Charset defines the character set to use for password generation
type Charset string

const (
	// CharsetAlpha uses only alphabetic characters (a-z, A-Z)
	CharsetAlpha Charset = "alpha"
	// CharsetAlnum uses alphanumeric characters (a-z, A-Z, 0-9)
	CharsetAlnum Charset = "alnum"
	// CharsetAlnumSpecial adds punctuation to CharsetAlnum
	CharsetAlnumSpecial Charset = "alnum_special"
)

// DefaultLength is the generated password length when none is given.
const DefaultLength = 20

var (
	errInvalidLength   = errors.New("length must be positive")
	errUnknownCharset  = errors.New("unknown charset")
	errInvalidWordSize = errors.New("word count must be positive")
)

const (
	letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"
	symbols = "!@#$%^&*()-_=+[]{}<>?,.:;/'\"|\\~"
)

var (
	charsetLookup = map[Charset]string{
		CharsetAlpha:        letters,
		CharsetAlnum:        letters + digits,
		CharsetAlnumSpecial: letters + digits + symbols,
	}
	randSource io.Reader = rand.Reader
	randMux    sync.RWMutex
)

var passphraseAdjectives = []string{
	"able", "amber", "brave", "calm", "clever", "crisp", "daring", "eager", "early", "fancy", "gentle", "happy", "ideal", "jolly", "keen", "lively", "magic", "noble", "oaken", "pearl", "quick", "ready", "solar", "tidy", "urban", "vivid", "warm", "young", "zesty", "bright", "candid", "dazzle", "elegant", "friendly", "glossy", "humble",
}

var passphraseNouns = []string{
	"anchor", "beacon", "canyon", "dream", "ember", "forest", "galaxy", "harbor", "island", "jungle", "kingdom", "lantern", "meadow", "nebula", "ocean", "prairie", "quartz", "river", "summit", "temple", "unicorn", "valley", "willow", "xenon", "yonder", "zephyr", "apple", "bridge", "comet", "dragon", "feather", "garden", "horizon", "idol", "jade", "keeper", "legend",
}

var (
	wordList []string
	wordOnce sync.Once
)

// SetRandomSource sets the random number generator source.
// If r is nil, it resets to the default crypto/rand.Reader.
func SetRandomSource(r io.Reader) {
	randMux.Lock()
	if r == nil {
		randSource = rand.Reader
	} else {
		randSource = r
	}
	randMux.Unlock()
}

func source() io.Reader {
	randMux.RLock()
	defer randMux.RUnlock()
	return randSource
}

// ParseCharset validates a charset name, case-insensitively.
func ParseCharset(name string) (Charset, error) {
	charset := Charset(strings.ToLower(name))
	if _, ok := charsetLookup[charset]; !ok {
		return "", fmt.Errorf("%w: %s (valid: alpha, alnum, alnum_special)", errUnknownCharset, name)
	}
	return charset, nil
}

// GeneratePassword returns length characters drawn uniformly from charset.
func GeneratePassword(length int, charset Charset) ([]byte, error) {
	if length <= 0 {
		return nil, errInvalidLength
	}

	chars, ok := charsetLookup[charset]
	if !ok {
		return nil, errUnknownCharset
	}

	src := source()
	out := make([]byte, length)
	for i := range out {
		idx, err := randomIndex(src, len(chars))
		if err != nil {
			return nil, fmt.Errorf("failed to read randomness: %w", err)
		}
		out[i] = chars[idx]
	}
	return out, nil
}

// GeneratePassphrase returns wordCount random adjective-noun pairs joined
// by spaces.
func GeneratePassphrase(wordCount int) ([]byte, error) {
	if wordCount <= 0 {
		return nil, errInvalidWordSize
	}

	words := passphraseWords()
	src := source()

	picked := make([]string, wordCount)
	for i := range picked {
		idx, err := randomIndex(src, len(words))
		if err != nil {
			return nil, fmt.Errorf("failed to read randomness: %w", err)
		}
		picked[i] = words[idx]
	}
	return []byte(strings.Join(picked, " ")), nil
}

func passphraseWords() []string {
	wordOnce.Do(func() {
		merged := make([]string, 0, len(passphraseAdjectives)*len(passphraseNouns))
		for _, adj := range passphraseAdjectives {
			for _, noun := range passphraseNouns {
				merged = append(merged, adj+"-"+noun)
			}
		}
		wordList = merged
	})
	return wordList
}

// randomIndex returns an unbiased index in [0, max) using rejection sampling.
func randomIndex(r io.Reader, max int) (int, error) {
	if max <= 0 {
		return 0, errInvalidLength
	}

	if max <= 256 {
		var buf [1]byte
		usable := 256 - (256 % max)
		for {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return 0, err
			}
			if int(buf[0]) < usable {
				return int(buf[0]) % max, nil
			}
		}
	}

	var buf [2]byte
	usable := 65536 - (65536 % max)
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		val := int(binary.BigEndian.Uint16(buf[:]))
		if val < usable {
			return val % max, nil
		}
	}
}
