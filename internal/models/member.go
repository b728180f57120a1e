package models

// Member is a profile owned by the user service and referenced here by id.
type Member struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}
