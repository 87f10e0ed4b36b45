// Package model defines the lead input and farm record output of a seeding run.
package model

// Lead is an unverified vendor candidate awaiting claim. Name is unique
// within a sink.
type Lead struct {
	Name     string   `json:"name" yaml:"name"`
	Address  string   `json:"address" yaml:"address"`
	Products []string `json:"products" yaml:"products"`
	Phone    string   `json:"phone" yaml:"phone"`
}
