package session

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/KaramelBytes/vaultsync-cli/internal/utils"
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer names accepted by NewTokenizer.
const (
	TokenizerTiktoken  = "tiktoken"
	TokenizerHeuristic = "heuristic"
)

// Tokenizer splits text into model token ids.
type Tokenizer interface {
	Tokenize(text string) []int
}

// NewTokenizer returns the named tokenizer. encoding applies to tiktoken only.
func NewTokenizer(name, encoding string) (Tokenizer, error) {
	switch strings.ToLower(name) {
	case "", TokenizerTiktoken:
		return NewTiktokenTokenizer(encoding)
	case TokenizerHeuristic:
		return HeuristicTokenizer{}, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q (want tiktoken or heuristic)", name)
	}
}

// TiktokenTokenizer wraps a tiktoken BPE encoding.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

// NewTiktokenTokenizer loads encoding (default cl100k_base). Loaded encodings
// are cached per process since building the BPE ranks is expensive.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = tiktoken.MODEL_CL100K_BASE
	}
	encMu.Lock()
	defer encMu.Unlock()
	if enc, ok := encCache[encoding]; ok {
		return &TiktokenTokenizer{enc: enc}, nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: get encoding %s: %w", encoding, err)
	}
	encCache[encoding] = enc
	return &TiktokenTokenizer{enc: enc}, nil
}

// Tokenize encodes text; special-token markers are treated as plain text.
func (t *TiktokenTokenizer) Tokenize(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// HeuristicTokenizer approximates a BPE tokenizer with one token per
// utils.CharsPerToken runes; the last token absorbs any remainder, so the
// token count always equals utils.CountTokens.
type HeuristicTokenizer struct{}

func (HeuristicTokenizer) Tokenize(text string) []int {
	n := utils.CountTokens(text)
	if n == 0 {
		return nil
	}
	runes := []rune(text)
	out := make([]int, n)
	for k := 0; k < n; k++ {
		start := k * utils.CharsPerToken
		end := start + utils.CharsPerToken
		if k == n-1 {
			end = len(runes)
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(string(runes[start:end])))
		out[k] = int(h.Sum32() & 0x7fffffff)
	}
	return out
}
