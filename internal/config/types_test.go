// SPDX-License-Identifier: MIT
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExperienceLevelCodes(t *testing.T) {
	assert.Empty(t, ExperienceLevel{}.Codes())
	assert.Equal(t, []int{2, 3, 4}, ExperienceLevel{Entry: true, Associate: true, MidSeniorLevel: true}.Codes())
	assert.Equal(t, []int{1, 6}, ExperienceLevel{Internship: true, Executive: true}.Codes())
}

func TestJobTypeLetters(t *testing.T) {
	assert.Empty(t, JobTypes{}.Letters())
	assert.Equal(t, []string{"F", "C"}, JobTypes{FullTime: true, Contract: true}.Letters())
	assert.Equal(t, []string{"P", "T", "I", "O"}, JobTypes{PartTime: true, Temporary: true, Internship: true, Other: true}.Letters())
}

func TestDateFilterWindow(t *testing.T) {
	assert.Equal(t, "", DateFilter{AllTime: true}.Window())
	assert.Equal(t, "r2592000", DateFilter{Month: true}.Window())
	assert.Equal(t, "r604800", DateFilter{Week: true}.Window())
	assert.Equal(t, "r86400", DateFilter{Day: true}.Window())
}
