// Converts a question workbook into the off-chain question set and the
// answer key a creator needs.
//
// The workbook has one question per row: text, three options, and the
// correct option number (1-3). The first 15 valid rows become the set.
// Output is a questions.json ready to pin (its hash becomes the
// questions ref) and the /setquestions answer list on stdout.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/basequiz/quiz_arena/internal/models"
)

type question struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

func main() {
	if len(os.Args) != 3 {
		log.Fatalf("usage: %s <workbook.xlsx> <questions.json>", os.Args[0])
	}

	f, err := excelize.OpenFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	var questions []question
	var answers []string

	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			fmt.Printf("Error reading sheet %s: %v\n", sheetName, err)
			continue
		}

		for i, row := range rows {
			if i == 0 || len(row) < 5 { // Skip header or invalid rows
				continue
			}

			// row[0]: Question Text
			// row[1..3]: Options 1-3
			// row[4]: Correct option number

			correct, err := strconv.Atoi(strings.TrimSpace(row[4]))
			if err != nil || !models.ValidAnswerCode(correct) {
				fmt.Printf("Invalid correct answer %q in sheet %s row %d\n", row[4], sheetName, i+1)
				continue
			}

			questions = append(questions, question{
				Text:    strings.TrimSpace(row[0]),
				Options: []string{row[1], row[2], row[3]},
			})
			answers = append(answers, strconv.Itoa(correct))

			if len(questions) == models.TotalQuestions {
				break
			}
		}
		if len(questions) == models.TotalQuestions {
			break
		}
	}

	if len(questions) != models.TotalQuestions {
		log.Fatalf("need %d questions, workbook has %d valid rows", models.TotalQuestions, len(questions))
	}

	data, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(os.Args[2], data, 0o644); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Wrote %d questions to %s\n", len(questions), os.Args[2])
	fmt.Println("Pin the file, then run:")
	fmt.Printf("/setquestions <game> <ref> %s\n", strings.Join(answers, " "))
}
