/*
Copyright 2025 Ringflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"errors"

	"github.com/ringflow/ringflow/model"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

func dialablePhoneValidation(l *CreateLead) validation.RuleFunc {
	return func(value interface{}) error {
		if model.NormalizePhone(l.PhoneNumber) == "" {
			return errors.New("phone_number must contain at least one digit")
		}
		return nil
	}
}

func (l *CreateLead) ValidateCreateLead() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.PhoneNumber, validation.Required, validation.By(dialablePhoneValidation(l))),
		validation.Field(&l.Email, validation.When(l.Email != "", is.Email)),
	)
}

// ValidateCreateLeadsBatch only checks the envelope. Row-level problems are
// the store's call: unusable rows are skipped and reported back, not rejected.
func (b *CreateLeadsBatch) ValidateCreateLeadsBatch() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.Leads, validation.Required, validation.Length(1, 0)),
	)
}

func (l *CreateLead) ToLead() *model.Lead {
	return &model.Lead{
		PhoneNumber: l.PhoneNumber,
		Name:        l.Name,
		Email:       l.Email,
		Company:     l.Company,
		CustomData:  l.CustomData,
	}
}

func (b *CreateLeadsBatch) ToLeads() []*model.Lead {
	leads := make([]*model.Lead, 0, len(b.Leads))
	for i := range b.Leads {
		leads = append(leads, b.Leads[i].ToLead())
	}
	return leads
}
