package contract

type ToolRequest struct {
	CallID    string `json:"call_id,omitempty"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments,omitempty"`
}

type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r ToolResult) Failed() bool {
	return r.Error != ""
}
