// Copyright 2016 The Vulcan Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Claims is what Inspect could learn about a credential.
type Claims struct {
	Subject string
	// ExpiresAt is zero when the token carries no expiry.
	ExpiresAt time.Time
}

// Inspect reads the registered claims of a JWT credential without verifying
// its signature. The result is informational only; credentials that are not
// JWTs return an error and are otherwise perfectly usable.
func Inspect(c Credential) (*Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(string(c), &rc); err != nil {
		return nil, errors.Wrap(err, "parse token")
	}

	claims := &Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}
	return claims, nil
}
