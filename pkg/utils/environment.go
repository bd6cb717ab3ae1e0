// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package utils

import "strings"

type Environment string

const (
	PRODUCTION  Environment = "production"
	DEVELOPMENT Environment = "development"
)

func (e Environment) Get() string {
	return string(e)
}

// FromEnvironmentStr defaults to DEVELOPMENT for anything unrecognized.
func FromEnvironmentStr(env string) Environment {
	switch strings.ToLower(env) {
	case "production":
		return PRODUCTION
	default:
		return DEVELOPMENT
	}
}
