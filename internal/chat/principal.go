package chat

// Principal is the authenticated caller of a request. The zero value is the
// anonymous caller.
type Principal struct {
	UserID   string
	Username string
}

var Anonymous = Principal{}

func (p Principal) Authenticated() bool { return p.UserID != "" }

// OwnerTag is the owner recorded on turns written by p: nil for anonymous
// callers, whose turns stay public.
func (p Principal) OwnerTag() *string {
	if !p.Authenticated() {
		return nil
	}
	id := p.UserID
	return &id
}

// Scope restricts store queries to one owner's turns when Scoped is set.
type Scope struct {
	OwnerID string
	Scoped  bool
}

// Unscoped matches every turn regardless of owner.
var Unscoped = Scope{}

func OwnedBy(ownerID string) Scope { return Scope{OwnerID: ownerID, Scoped: true} }

// ReadScope is the scope for context assembly and search. Anonymous callers
// read across all owners; this mirrors how unowned conversations were always
// treated as public and is kept on purpose.
func (p Principal) ReadScope() Scope {
	if !p.Authenticated() {
		return Unscoped
	}
	return OwnedBy(p.UserID)
}

// WriteScope is the scope for listing, loading, rename and delete, which all
// require a principal.
func (p Principal) WriteScope() (Scope, error) {
	if !p.Authenticated() {
		return Unscoped, newError(ErrorAuthRequired, "principal_required", nil)
	}
	return OwnedBy(p.UserID), nil
}
