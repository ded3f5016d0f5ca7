package graph

type User struct {
	ID string `json:"id"`
}

type Circle struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"owner_id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}
