// Package token derives the access token that gates purchase execution.
//
// A token is the hex MD5 digest of "<itemID>/<secret>". It binds an item to the
// process secret only: there is no expiry and no per-session nonce, so a token
// leaked while a sale is open stays valid for that item.
package token

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
)

var ErrEmptySecret = errors.New("token secret must not be empty")

const separator = "/"

type Codec struct {
	secret string
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Codec{secret: secret}, nil
}

func (c *Codec) Derive(itemID int64) string {
	sum := md5.Sum([]byte(strconv.FormatInt(itemID, 10) + separator + c.secret))
	return hex.EncodeToString(sum[:])
}

func (c *Codec) Verify(itemID int64, candidate string) bool {
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(c.Derive(itemID))) == 1
}
