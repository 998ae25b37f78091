package codec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/lmittmann/w3"
)

var (
	paramModifierRe = regexp.MustCompile(`\b(memory|calldata|storage|indexed|payable)\b`)
	tupleKeywordRe  = regexp.MustCompile(`\btuple\s*\(`)
	typeAliases     = []struct {
		re  *regexp.Regexp
		typ string
	}{
		{regexp.MustCompile(`\buint\b`), "uint256"},
		{regexp.MustCompile(`\bint\b`), "int256"},
		{regexp.MustCompile(`\bbyte\b`), "bytes1"},
	}
)

// parseHumanMethod parses fragments such as
// "function getRoleMember(bytes32 role, uint256 index) view returns (address)".
// Parameter lists are parsed by w3; only the returns clause and the
// mutability modifiers are split off here.
func parseHumanMethod(fragment string) (Method, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(fragment), "function "))

	head, returns := s, ""
	if idx := strings.Index(s, "returns"); idx >= 0 {
		head = strings.TrimSpace(s[:idx])
		returns = strings.TrimSpace(s[idx+len("returns"):])
		if !strings.HasPrefix(returns, "(") || !strings.HasSuffix(returns, ")") {
			return Method{}, fmt.Errorf("invalid method fragment %q: returns without parameter list", fragment)
		}
		returns = returns[1 : len(returns)-1]
	}

	open, closing := strings.IndexByte(head, '('), strings.LastIndexByte(head, ')')
	if open <= 0 || closing < open {
		return Method{}, fmt.Errorf("invalid method fragment %q: missing parameter list", fragment)
	}
	name := strings.TrimSpace(head[:open])
	if strings.ContainsAny(name, " \t") {
		return Method{}, fmt.Errorf("invalid method name %q", name)
	}

	mutability := "view"
	for _, word := range strings.Fields(head[closing+1:]) {
		switch word {
		case "view", "pure", "nonpayable", "payable":
			mutability = word
		case "external", "public":
		default:
			return Method{}, fmt.Errorf("invalid method fragment %q: unknown modifier %q", fragment, word)
		}
	}

	fn, err := w3.NewFunc(name+normalizeParams(head[open:closing+1]), normalizeParams(returns))
	if err != nil {
		return Method{}, fmt.Errorf("invalid method fragment %q: %w", fragment, err)
	}

	isConst := mutability == "view" || mutability == "pure"
	method := abi.NewMethod(name, name, abi.Function, mutability, isConst, mutability == "payable", fn.Args, fn.Returns)
	return Method{abi: method}, nil
}

// normalizeParams drops data location keywords and expands the type
// shorthands Solidity accepts but the ABI type grammar does not.
func normalizeParams(src string) string {
	src = paramModifierRe.ReplaceAllString(src, "")
	src = tupleKeywordRe.ReplaceAllString(src, "(")
	for _, alias := range typeAliases {
		src = alias.re.ReplaceAllString(src, alias.typ)
	}
	return src
}
