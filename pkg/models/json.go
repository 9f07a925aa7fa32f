package models

import jsonpool "github.com/ajitpratap0/relay/pkg/json"

var unmarshalJSON = jsonpool.Unmarshal
