// Package namegen generates human-friendly random identifiers.
package namegen

import (
	vendor "github.com/anandvarma/namegen"
)

var gen = vendor.New()

type ID string

func Get() ID {
	return ID(gen.Get())
}

func (id ID) String() string {
	return string(id)
}

// CloudName returns a random name for a cloud that was not given one.
func CloudName() string {
	return "compound-" + Get().String()
}
