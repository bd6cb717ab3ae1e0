// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package gorm_model

import "time"

// Audited is embedded by every persisted entity.
type Audited struct {
	Id          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedDate time.Time `json:"createdDate" gorm:"autoCreateTime;not null"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"autoUpdateTime"`
}
