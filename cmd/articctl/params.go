package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/rpc"
)

// parseParams builds a parameter region from kind:value arguments:
//
//	s8:N s32:N s64:N    little-endian integers
//	hex:BYTES           raw buffer
//	empty               empty path blob
//	ascii:TEXT          ASCII path blob
//	utf16:TEXT          UTF-16 path blob
//	binary:W,W,...      binary path blob of u32 words
func parseParams(args []string) (*rpc.Params, error) {
	p := rpc.NewParams()
	for i, arg := range args {
		kind, value, _ := strings.Cut(arg, ":")
		switch strings.ToLower(kind) {
		case "s8":
			v, err := strconv.ParseInt(value, 0, 8)
			if err != nil {
				return nil, paramErr(i, arg, err)
			}
			p.S8(int8(v))
		case "s32":
			v, err := strconv.ParseInt(value, 0, 32)
			if err != nil {
				return nil, paramErr(i, arg, err)
			}
			p.S32(int32(v))
		case "s64":
			v, err := strconv.ParseInt(value, 0, 64)
			if err != nil {
				return nil, paramErr(i, arg, err)
			}
			p.S64(v)
		case "hex":
			b, err := hex.DecodeString(value)
			if err != nil {
				return nil, paramErr(i, arg, err)
			}
			p.Buffer(b)
		case "empty":
			p.Buffer(native.EmptyPath().Encode())
		case "ascii":
			p.Buffer(native.ASCIIPath(value).Encode())
		case "utf16":
			p.Buffer(native.UTF16Path(value).Encode())
		case "binary":
			words, err := parseWords(value)
			if err != nil {
				return nil, paramErr(i, arg, err)
			}
			p.Buffer(native.BinaryPath(words...).Encode())
		default:
			return nil, paramErr(i, arg, fmt.Errorf("unknown kind %q", kind))
		}
	}
	return p, nil
}

func parseWords(value string) ([]uint32, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	words := make([]uint32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 0, 32)
		if err != nil {
			return nil, err
		}
		words = append(words, uint32(v))
	}
	return words, nil
}

func paramErr(i int, arg string, err error) error {
	return fmt.Errorf("param %d (%s): %w", i, arg, err)
}
