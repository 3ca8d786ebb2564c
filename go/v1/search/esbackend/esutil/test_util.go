package esutil

import (
	"io/ioutil"
	"net/http"
)

type TransportAction = func(req *http.Request) (*http.Response, error)

// MockEsTransport records requests and replays prepared responses, for tests of code built on the
// Elasticsearch client.
type MockEsTransport struct {
	ReceivedHttpRequests  []*http.Request
	PreparedHttpResponses []*http.Response
	Actions               []TransportAction
}

func (m *MockEsTransport) Perform(req *http.Request) (*http.Response, error) {
	m.ReceivedHttpRequests = append(m.ReceivedHttpRequests, req)

	if len(m.Actions) != 0 {
		action := m.Actions[0]
		if action != nil {
			m.Actions = append(m.Actions[:0], m.Actions[1:]...)
			return action(req)
		}
	}

	if len(m.PreparedHttpResponses) != 0 {
		res := m.PreparedHttpResponses[0]
		m.PreparedHttpResponses = append(m.PreparedHttpResponses[:0], m.PreparedHttpResponses[1:]...)

		return res, nil
	}

	return nil, nil
}

// JsonResponse prepares a response whose body is the JSON encoding of body.
func JsonResponse(status int, body interface{}) *http.Response {
	reader, _ := EncodeRequest(body)

	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       ioutil.NopCloser(reader),
	}
}
