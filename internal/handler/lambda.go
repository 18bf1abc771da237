package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Lambda adapts Handle to an API Gateway (REST, payload v1) proxy event,
// the shape Netlify Functions also use.  The error result is always nil;
// every failure is expressed as a status code.
func (h *Handler) Lambda(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req := Request{
		Method:   strings.ToUpper(ev.HTTPMethod),
		Header:   eventHeader(ev.Headers, ev.MultiValueHeaders),
		Query:    eventQuery(ev.QueryStringParameters, ev.MultiValueQueryStringParameters),
		Body:     ev.Body,
		Base64:   ev.IsBase64Encoded,
		RemoteIP: ev.RequestContext.Identity.SourceIP,
	}

	resp := h.Handle(ctx, req)

	out := events.APIGatewayProxyResponse{
		StatusCode:        resp.Status,
		Headers:           make(map[string]string, len(resp.Header)),
		MultiValueHeaders: make(map[string][]string, len(resp.Header)),
		Body:              string(resp.Body),
	}
	for k, vs := range resp.Header {
		if len(vs) == 0 {
			continue
		}
		out.Headers[k] = strings.Join(vs, ", ")
		out.MultiValueHeaders[k] = vs
	}
	return out, nil
}

// eventHeader merges single- and multi-value header maps under canonical
// keys.  Gateways may send either, or both with the same content.
func eventHeader(single map[string]string, multi map[string][]string) http.Header {
	h := make(http.Header, len(single)+len(multi))
	for k, vs := range multi {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	for k, v := range single {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
	return h
}

func eventQuery(single map[string]string, multi map[string][]string) url.Values {
	q := make(url.Values, len(single)+len(multi))
	for k, vs := range multi {
		q[k] = append(q[k], vs...)
	}
	for k, v := range single {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	return q
}
