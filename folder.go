package imap

import (
	"bytes"
	"regexp"
	"strconv"
)

var existsRE = regexp.MustCompile(`\* (\d+) EXISTS`)

// GetFolders retrieves the list of available folders
func (d *Dialer) GetFolders() (folders []string, err error) {
	folders = make([]string, 0)
	_, err = d.Exec(`LIST "" "*"`, false, RetryCount, func(line []byte) (err error) {
		line = dropNl(line)
		if b := bytes.IndexByte(line, '\n'); b != -1 {
			folders = append(folders, string(line[b+1:]))
		} else {
			if len(line) == 0 {
				return err
			}
			i := len(line) - 1
			quoted := line[i] == '"'
			delim := byte(' ')
			if quoted {
				delim = '"'
				i--
			}
			end := i
			for i > 0 {
				if line[i] == delim {
					if !quoted || line[i-1] != '\\' {
						break
					}
				}
				i--
			}
			folders = append(folders, RemoveSlashes.Replace(string(line[i+1:end+1])))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return folders, nil
}

// ExamineFolder selects a folder in read-only mode
func (d *Dialer) ExamineFolder(folder string) (err error) {
	r, err := d.Exec(`EXAMINE "`+AddSlashes.Replace(folder)+`"`, true, RetryCount, nil)
	if err != nil {
		return err
	}
	d.Folder = folder
	d.ReadOnly = true
	d.exists = parseExistsCount(r)
	d.setState(StateSelected)
	return nil
}

// SelectFolder selects a folder in read-write mode
func (d *Dialer) SelectFolder(folder string) (err error) {
	r, err := d.Exec(`SELECT "`+AddSlashes.Replace(folder)+`"`, true, RetryCount, nil)
	if err != nil {
		return err
	}
	d.Folder = folder
	d.ReadOnly = false
	d.exists = parseExistsCount(r)
	d.setState(StateSelected)
	return nil
}

// GetMessageCount returns the message count the last SELECT or EXAMINE of
// the current folder reported
func (d *Dialer) GetMessageCount() int {
	return d.exists
}

// parseExistsCount pulls the message count out of an untagged EXISTS line in
// a SELECT/EXAMINE response, returning 0 if there is none.
func parseExistsCount(response string) int {
	matches := existsRE.FindStringSubmatch(response)
	if len(matches) > 1 {
		if count, err := strconv.Atoi(matches[1]); err == nil {
			return count
		}
	}
	return 0
}
