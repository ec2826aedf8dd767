package httpserver

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RemoveFromCartResponse struct {
	ProductID uint `json:"product_id"`
	Removed   bool `json:"removed"`
}
