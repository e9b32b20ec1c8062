package flickr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// envelope is the status part shared by every REST response
type envelope struct {
	Stat    string `json:"stat"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e envelope) failed() bool {
	return e.Stat != "ok"
}

// FlexInt decodes a JSON number or a numeric string. The REST API returns
// both forms for the same field depending on the method.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", s, err)
		}
		*f = FlexInt(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// content unwraps the {"_content": "..."} objects used for text fields
type content struct {
	Content string `json:"_content"`
}

// Photo is one search result with the date extras requested
type Photo struct {
	ID         string  `json:"id"`
	Owner      string  `json:"owner"`
	Title      string  `json:"title"`
	DateUpload FlexInt `json:"dateupload"`
	// DateTaken is local time formatted "YYYY-MM-DD HH:MM:SS", or empty
	DateTaken string `json:"datetaken"`
}

// PhotosPage is one page of a photo search
type PhotosPage struct {
	Page    FlexInt `json:"page"`
	Pages   FlexInt `json:"pages"`
	PerPage FlexInt `json:"perpage"`
	Total   FlexInt `json:"total"`
	Photo   []Photo `json:"photo"`
}

type photosResponse struct {
	envelope
	Photos *PhotosPage `json:"photos"`
}

type findByUsernameResponse struct {
	envelope
	User struct {
		ID       string  `json:"id"`
		NSID     string  `json:"nsid"`
		Username content `json:"username"`
	} `json:"user"`
}

type lookupUserResponse struct {
	envelope
	User struct {
		ID       string  `json:"id"`
		Username content `json:"username"`
	} `json:"user"`
}

// Person is the subset of flickr.people.getInfo used for profiles
type Person struct {
	NSID       string
	Username   string
	RealName   string
	IconServer string
	IconFarm   int
	// FirstDate is the unix time of the first upload, 0 when unknown
	FirstDate int64
	// FirstDateTaken is the earliest taken date string, empty when unknown
	FirstDateTaken string
	PhotoCount     int
	ProfileURL     string
}

type personResponse struct {
	envelope
	Person struct {
		ID         string  `json:"id"`
		NSID       string  `json:"nsid"`
		IconServer string  `json:"iconserver"`
		IconFarm   FlexInt `json:"iconfarm"`
		Username   content `json:"username"`
		RealName   content `json:"realname"`
		ProfileURL content `json:"profileurl"`
		Photos     struct {
			FirstDate      content `json:"firstdate"`
			FirstDateTaken content `json:"firstdatetaken"`
			Count          struct {
				Content FlexInt `json:"_content"`
			} `json:"count"`
		} `json:"photos"`
	} `json:"person"`
}

func (r personResponse) toPerson() Person {
	p := r.Person
	nsid := p.NSID
	if nsid == "" {
		nsid = p.ID
	}
	first, _ := strconv.ParseInt(p.Photos.FirstDate.Content, 10, 64)
	return Person{
		NSID:           nsid,
		Username:       p.Username.Content,
		RealName:       p.RealName.Content,
		IconServer:     p.IconServer,
		IconFarm:       int(p.IconFarm),
		FirstDate:      first,
		FirstDateTaken: p.Photos.FirstDateTaken.Content,
		PhotoCount:     int(p.Photos.Count.Content),
		ProfileURL:     p.ProfileURL.Content,
	}
}
