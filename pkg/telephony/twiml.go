package telephony

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// ContentTypeTwiML is the response content type for voice webhooks.
const ContentTypeTwiML = "text/xml; charset=utf-8"

// Response is a TwiML document. Verbs render in order.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// Say speaks text.
type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr,omitempty"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

// Gather collects speech and/or digits and posts them to Action.
type Gather struct {
	XMLName             xml.Name `xml:"Gather"`
	Input               string   `xml:"input,attr,omitempty"`
	Action              string   `xml:"action,attr,omitempty"`
	Method              string   `xml:"method,attr,omitempty"`
	Timeout             int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout       string   `xml:"speechTimeout,attr,omitempty"`
	NumDigits           int      `xml:"numDigits,attr,omitempty"`
	Language            string   `xml:"language,attr,omitempty"`
	Hints               string   `xml:"hints,attr,omitempty"`
	ActionOnEmptyResult bool     `xml:"actionOnEmptyResult,attr,omitempty"`
	Verbs               []any
}

// Redirect continues the call at URL.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Pause waits Length seconds.
type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Render serializes r with the XML declaration. Attribute order follows the
// struct field order, so equal inputs render to identical bytes.
func (r *Response) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("render twiml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("render twiml: %w", err)
	}
	return buf.Bytes(), nil
}
