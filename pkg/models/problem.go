package models

// APIProblem represents an RFC 7807 Problem Details response for Swagger docs.
// This type is used only in swagger annotations to describe error responses.
type APIProblem struct {
	Type     string `json:"type" example:"https://labgraph.dev/problems/insufficient-data"`
	Title    string `json:"title" example:"Unprocessable Entity"`
	Status   int    `json:"status" example:"422"`
	Detail   string `json:"detail,omitempty" example:"no measurements in window"`
	Instance string `json:"instance,omitempty" example:"/api/v1/qc/statistics"`
}
