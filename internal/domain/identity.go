package domain

// Owner says who a collection belongs to. Exactly one field is set on a
// stored collection.
type Owner struct {
	UserID string
	Token  string
}

// Identity is the caller as resolved from a request. Both a user id and a
// guest token may be present, in which case the user owns collections and
// the token is only used for merging.
type Identity struct {
	UserID     string
	GuestToken string
}

func (id Identity) IsAnonymous() bool {
	return id.UserID == "" && id.GuestToken == ""
}

// Owner picks the user over the guest token.
func (id Identity) Owner() Owner {
	if id.UserID != "" {
		return Owner{UserID: id.UserID}
	}
	return Owner{Token: id.GuestToken}
}

// ViewerKey is the per-viewer component of a product view's uniqueness key.
func (id Identity) ViewerKey() string {
	switch {
	case id.UserID != "":
		return "user:" + id.UserID
	case id.GuestToken != "":
		return "token:" + id.GuestToken
	default:
		return "anonymous"
	}
}
