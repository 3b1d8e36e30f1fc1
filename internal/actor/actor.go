// Package actor holds the explicit tagged-union reference used wherever a
// row can belong to (or be caused by) either a customer or a back-office
// admin. No morph-map style string polymorphism; the kind is a closed enum.
package actor

import "fmt"

type Kind string

const (
	KindUser  Kind = "user"
	KindAdmin Kind = "admin"
)

// Ref identifies a user or admin.
type Ref struct {
	Kind Kind   `json:"kind" db:"kind"`
	ID   string `json:"id" db:"id"`
}

func User(id string) Ref  { return Ref{Kind: KindUser, ID: id} }
func Admin(id string) Ref { return Ref{Kind: KindAdmin, ID: id} }

func (r Ref) IsZero() bool { return r.ID == "" }

func (r Ref) Valid() bool {
	if r.ID == "" {
		return false
	}
	return r.Kind == KindUser || r.Kind == KindAdmin
}

// Key is a stable composite key, usable for map lookups and lock ordering.
func (r Ref) Key() string { return string(r.Kind) + ":" + r.ID }

func (r Ref) String() string { return fmt.Sprintf("%s/%s", r.Kind, r.ID) }
