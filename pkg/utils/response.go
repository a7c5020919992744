package utils

type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results"`
}

// PanicIfNeeded hands err to the Recovery middleware, which renders it.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
